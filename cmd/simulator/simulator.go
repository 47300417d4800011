package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Config holds the simulated charge point identity.
type Config struct {
	ServerURL       string
	Serial          string
	Vendor          string
	Model           string
	FirmwareVersion string
	ConnectorCount  int
}

type connectorState struct {
	ID      int
	Status  string
	MeterWh int
}

// Simulator speaks OCPP 1.6-J against the gateway: it boots, heartbeats,
// pushes status and meter values, and answers every central-system
// initiated call with a plausible reply.
type Simulator struct {
	cfg Config
	log *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	connectors []connectorState

	heartbeatInterval int
	txID              int
	txConnector       int
	txIDTag           string
	localListVersion  int
	configKeys        map[string]string

	messageID int
	pending   map[string]chan json.RawMessage
	mu        sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSimulator(cfg Config, log *zap.Logger) *Simulator {
	connectors := make([]connectorState, cfg.ConnectorCount)
	for i := range connectors {
		connectors[i] = connectorState{ID: i + 1, Status: "Available"}
	}

	return &Simulator{
		cfg:               cfg,
		log:               log,
		connectors:        connectors,
		heartbeatInterval: 300,
		pending:           make(map[string]chan json.RawMessage),
		configKeys: map[string]string{
			"HeartbeatInterval":        "300",
			"MeterValueSampleInterval": "60",
			"NumberOfConnectors":       strconv.Itoa(cfg.ConnectorCount),
		},
	}
}

// Connect dials the gateway and runs the boot sequence.
func (s *Simulator) Connect() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	url := fmt.Sprintf("%s/%s", s.cfg.ServerURL, s.cfg.Serial)
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		Subprotocols: []string{"ocpp1.6"},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(1 << 20)
	s.conn = conn

	s.log.Info("Connected to gateway",
		zap.String("url", url),
		zap.String("subprotocol", conn.Subprotocol()),
	)

	s.wg.Add(1)
	go s.readLoop(ctx)

	if err := s.bootSequence(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.heartbeatLoop(ctx)
	return nil
}

// Stop closes the connection and waits for the loops to drain.
func (s *Simulator) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	s.wg.Wait()
}

func (s *Simulator) bootSequence(ctx context.Context) error {
	resp, err := s.call(ctx, "BootNotification", map[string]interface{}{
		"chargePointVendor":       s.cfg.Vendor,
		"chargePointModel":        s.cfg.Model,
		"chargePointSerialNumber": s.cfg.Serial,
		"firmwareVersion":         s.cfg.FirmwareVersion,
	})
	if err != nil {
		return fmt.Errorf("BootNotification: %w", err)
	}

	var boot struct {
		Status   string `json:"status"`
		Interval int    `json:"interval"`
	}
	if err := json.Unmarshal(resp, &boot); err == nil && boot.Interval > 0 {
		s.heartbeatInterval = boot.Interval
	}
	s.log.Info("Boot accepted", zap.Int("heartbeat_interval", s.heartbeatInterval))

	for _, c := range s.connectors {
		s.SetConnectorStatus(c.ID, c.Status, "NoError")
	}
	return nil
}

func (s *Simulator) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.heartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.call(ctx, "Heartbeat", map[string]interface{}{}); err != nil {
				s.log.Warn("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

// StartCharging begins a local transaction on the given connector.
func (s *Simulator) StartCharging(connector int, idTag string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := s.call(ctx, "StartTransaction", map[string]interface{}{
		"connectorId": connector,
		"idTag":       idTag,
		"meterStart":  s.meterFor(connector),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	var result struct {
		TransactionID int `json:"transactionId"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	s.mu.Lock()
	s.txID = result.TransactionID
	s.txConnector = connector
	s.txIDTag = idTag
	s.mu.Unlock()

	s.SetConnectorStatus(connector, "Charging", "NoError")
	s.log.Info("Transaction started", zap.Int("transaction_id", result.TransactionID))
	return nil
}

// StopCharging ends the active transaction.
func (s *Simulator) StopCharging(reason string) error {
	s.mu.Lock()
	txID := s.txID
	connector := s.txConnector
	s.txID = 0
	s.mu.Unlock()

	if txID == 0 {
		return fmt.Errorf("no active transaction")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.call(ctx, "StopTransaction", map[string]interface{}{
		"transactionId": txID,
		"meterStop":     s.meterFor(connector) + 1500,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"reason":        reason,
	})
	if err != nil {
		return err
	}

	s.SetConnectorStatus(connector, "Available", "NoError")
	s.log.Info("Transaction stopped", zap.Int("transaction_id", txID))
	return nil
}

// SetConnectorStatus pushes a StatusNotification.
func (s *Simulator) SetConnectorStatus(connector int, status, errorCode string) {
	for i := range s.connectors {
		if s.connectors[i].ID == connector {
			s.connectors[i].Status = status
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.call(ctx, "StatusNotification", map[string]interface{}{
		"connectorId": connector,
		"status":      status,
		"errorCode":   errorCode,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Warn("StatusNotification failed", zap.Error(err))
	}
}

// SendMeterValue pushes a MeterValues sample for the active transaction.
func (s *Simulator) SendMeterValue(wh int) {
	s.mu.Lock()
	txID := s.txID
	connector := s.txConnector
	s.mu.Unlock()

	payload := map[string]interface{}{
		"connectorId": connector,
		"meterValue": []map[string]interface{}{{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"sampledValue": []map[string]interface{}{{
				"value":     strconv.Itoa(wh),
				"measurand": "Energy.Active.Import.Register",
				"unit":      "Wh",
			}},
		}},
	}
	if txID != 0 {
		payload["transactionId"] = txID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.call(ctx, "MeterValues", payload); err != nil {
		s.log.Warn("MeterValues failed", zap.Error(err))
	}
}

func (s *Simulator) meterFor(connector int) int {
	for _, c := range s.connectors {
		if c.ID == connector {
			return c.MeterWh
		}
	}
	return 0
}

// --- Wire plumbing ---

func (s *Simulator) call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	s.mu.Lock()
	s.messageID++
	id := strconv.Itoa(s.messageID)
	ch := make(chan json.RawMessage, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	frame, err := json.Marshal([]interface{}{2, id, action, payload})
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, frame); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s rejected by gateway", action)
		}
		return resp, nil
	}
}

func (s *Simulator) write(ctx context.Context, frame []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Simulator) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("Connection closed", zap.Error(err))
			}
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
			s.log.Warn("Malformed frame", zap.ByteString("data", data))
			continue
		}

		var msgType int
		var msgID string
		json.Unmarshal(frame[0], &msgType)
		json.Unmarshal(frame[1], &msgID)

		switch msgType {
		case 2:
			var action string
			json.Unmarshal(frame[2], &action)
			var payload json.RawMessage
			if len(frame) > 3 {
				payload = frame[3]
			}
			s.handleCall(ctx, msgID, action, payload)
		case 3:
			s.mu.Lock()
			if ch, ok := s.pending[msgID]; ok {
				ch <- frame[2]
			}
			s.mu.Unlock()
		case 4:
			s.mu.Lock()
			if ch, ok := s.pending[msgID]; ok {
				close(ch)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Simulator) reply(ctx context.Context, msgID string, payload interface{}) {
	frame, err := json.Marshal([]interface{}{3, msgID, payload})
	if err != nil {
		return
	}
	if err := s.write(ctx, frame); err != nil {
		s.log.Warn("Failed to send reply", zap.Error(err))
	}
}

func (s *Simulator) replyError(ctx context.Context, msgID, code, description string) {
	frame, _ := json.Marshal([]interface{}{4, msgID, code, description, map[string]interface{}{}})
	s.write(ctx, frame)
}

// handleCall answers a central-system initiated request. Side effects
// such as starting a transaction or pushing status sequences run in
// goroutines so the reply goes out first.
func (s *Simulator) handleCall(ctx context.Context, msgID, action string, payload json.RawMessage) {
	s.log.Debug("Incoming call", zap.String("action", action))

	switch action {
	case "RemoteStartTransaction":
		var req struct {
			IDTag       string `json:"idTag"`
			ConnectorID int    `json:"connectorId"`
		}
		json.Unmarshal(payload, &req)
		if req.ConnectorID == 0 {
			req.ConnectorID = 1
		}
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})
		go s.StartCharging(req.ConnectorID, req.IDTag)

	case "RemoteStopTransaction":
		s.mu.Lock()
		active := s.txID != 0
		s.mu.Unlock()
		if !active {
			s.reply(ctx, msgID, map[string]string{"status": "Rejected"})
			return
		}
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})
		go s.StopCharging("Remote")

	case "Reset":
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})
		go func() {
			time.Sleep(time.Second)
			s.log.Info("Reset requested, reconnecting")
			s.Stop()
		}()

	case "UnlockConnector":
		s.reply(ctx, msgID, map[string]string{"status": "Unlocked"})

	case "ChangeAvailability":
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})

	case "GetConfiguration":
		var req struct {
			Key []string `json:"key"`
		}
		json.Unmarshal(payload, &req)
		s.reply(ctx, msgID, map[string]interface{}{
			"configurationKey": s.configurationKeys(req.Key),
		})

	case "ChangeConfiguration":
		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		json.Unmarshal(payload, &req)
		s.mu.Lock()
		s.configKeys[req.Key] = req.Value
		s.mu.Unlock()
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})

	case "ReserveNow", "CancelReservation", "SetChargingProfile", "ClearChargingProfile":
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})

	case "GetCompositeSchedule":
		var req struct {
			ConnectorID int `json:"connectorId"`
		}
		json.Unmarshal(payload, &req)
		s.reply(ctx, msgID, map[string]interface{}{
			"status":        "Accepted",
			"connectorId":   req.ConnectorID,
			"scheduleStart": time.Now().UTC().Format(time.RFC3339),
			"chargingSchedule": map[string]interface{}{
				"chargingRateUnit": "W",
				"chargingSchedulePeriod": []map[string]interface{}{
					{"startPeriod": 0, "limit": 11000},
				},
			},
		})

	case "UpdateFirmware":
		s.reply(ctx, msgID, map[string]interface{}{})
		go s.firmwareSequence(ctx)

	case "GetDiagnostics":
		s.reply(ctx, msgID, map[string]string{
			"fileName": fmt.Sprintf("%s-diag.tar.gz", s.cfg.Serial),
		})
		go s.diagnosticsSequence(ctx)

	case "GetLog":
		s.reply(ctx, msgID, map[string]string{
			"status":   "Accepted",
			"filename": fmt.Sprintf("%s-log.tar.gz", s.cfg.Serial),
		})

	case "TriggerMessage":
		var req struct {
			RequestedMessage string `json:"requestedMessage"`
			ConnectorID      int    `json:"connectorId"`
		}
		json.Unmarshal(payload, &req)
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})
		go s.triggered(req.RequestedMessage, req.ConnectorID)

	case "SendLocalList":
		var req struct {
			ListVersion int `json:"listVersion"`
		}
		json.Unmarshal(payload, &req)
		s.mu.Lock()
		s.localListVersion = req.ListVersion
		s.mu.Unlock()
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})

	case "GetLocalListVersion":
		s.mu.Lock()
		version := s.localListVersion
		s.mu.Unlock()
		s.reply(ctx, msgID, map[string]int{"listVersion": version})

	case "InstallCertificate", "DeleteCertificate", "CertificateSigned":
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})

	case "GetInstalledCertificateIds":
		s.reply(ctx, msgID, map[string]interface{}{
			"status": "Accepted",
			"certificateHashDataChain": []map[string]interface{}{{
				"certificateHashData": map[string]string{
					"hashAlgorithm":  "SHA256",
					"issuerNameHash": "a1b2c3",
					"issuerKeyHash":  "d4e5f6",
					"serialNumber":   "01",
				},
			}},
		})

	case "DataTransfer":
		s.reply(ctx, msgID, map[string]string{"status": "Accepted"})

	default:
		s.replyError(ctx, msgID, "NotImplemented", fmt.Sprintf("action %s not supported", action))
	}
}

func (s *Simulator) configurationKeys(filter []string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]map[string]interface{}, 0, len(s.configKeys))
	for k, v := range s.configKeys {
		if len(filter) > 0 && !contains(filter, k) {
			continue
		}
		keys = append(keys, map[string]interface{}{
			"key": k, "readonly": false, "value": v,
		})
	}
	return keys
}

func (s *Simulator) firmwareSequence(ctx context.Context) {
	for _, status := range []string{"Downloading", "Downloaded", "Installing", "Installed"} {
		time.Sleep(2 * time.Second)
		if _, err := s.call(ctx, "FirmwareStatusNotification", map[string]string{"status": status}); err != nil {
			s.log.Warn("FirmwareStatusNotification failed", zap.Error(err))
			return
		}
	}
}

func (s *Simulator) diagnosticsSequence(ctx context.Context) {
	for _, status := range []string{"Uploading", "Uploaded"} {
		time.Sleep(time.Second)
		if _, err := s.call(ctx, "DiagnosticsStatusNotification", map[string]string{"status": status}); err != nil {
			s.log.Warn("DiagnosticsStatusNotification failed", zap.Error(err))
			return
		}
	}
}

func (s *Simulator) triggered(message string, connector int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch message {
	case "Heartbeat":
		s.call(ctx, "Heartbeat", map[string]interface{}{})
	case "BootNotification":
		s.call(ctx, "BootNotification", map[string]interface{}{
			"chargePointVendor": s.cfg.Vendor,
			"chargePointModel":  s.cfg.Model,
		})
	case "StatusNotification":
		if connector == 0 {
			connector = 1
		}
		for _, c := range s.connectors {
			if c.ID == connector {
				s.SetConnectorStatus(c.ID, c.Status, "NoError")
			}
		}
	case "MeterValues":
		s.SendMeterValue(s.meterFor(1))
	case "FirmwareStatusNotification":
		s.call(ctx, "FirmwareStatusNotification", map[string]string{"status": "Idle"})
	case "DiagnosticsStatusNotification":
		s.call(ctx, "DiagnosticsStatusNotification", map[string]string{"status": "Idle"})
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
