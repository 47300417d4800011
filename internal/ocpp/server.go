package ocpp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/observability/telemetry"
)

// Subprotocol tokens in preference order, newest first. A client
// offering none of them is served without a subprotocol rather than
// rejected.
var supportedSubprotocols = []string{"ocpp2.1", "ocpp2.0.1", "ocpp1.6"}

// Server owns the charge-point websocket endpoint. The admin API runs
// elsewhere; this listener speaks only OCPP.
type Server struct {
	gw       *Gateway
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	log      *zap.Logger
}

func NewServer(gw *Gateway, log *zap.Logger) *Server {
	return &Server{
		gw:  gw,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    supportedSubprotocols,
			CheckOrigin: func(r *http.Request) bool {
				// Charge points are not browsers; Origin carries no signal.
				return true
			},
		},
	}
}

// Start serves the OCPP endpoint until Shutdown.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp/", s.HandleWS)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("OCPP websocket server listening", zap.Int("port", port))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// negotiateSubprotocol picks the newest protocol version the client
// offers, or none.
func negotiateSubprotocol(r *http.Request) string {
	offered := websocket.Subprotocols(r)
	for _, preferred := range supportedSubprotocols {
		for _, o := range offered {
			if strings.EqualFold(o, preferred) {
				return preferred
			}
		}
	}
	return ""
}

// clientIP resolves the originating address, honoring the forwarding
// headers a fronting proxy sets.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}

func basicAuthOK(charger *domain.Charger, r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	if charger.WsAuthUser != "" && user != charger.WsAuthUser {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(charger.WsAuthPasswordHash), []byte(pass)) == nil
}

// HandleWS upgrades an incoming charge-point connection and runs its
// read loop. Rejections happen after the upgrade so the device receives
// a descriptive close code instead of a bare HTTP error.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sourceIP := clientIP(r)
	proto := negotiateSubprotocol(r)

	serial, idErr := ResolveIdentity(r, "")

	var charger *domain.Charger
	authFailed := false
	if idErr == nil {
		c, err := s.gw.devices.GetCharger(r.Context(), serial)
		if err == nil {
			charger = c
		}
		if charger != nil && charger.RequiresWsAuth {
			authFailed = !basicAuthOK(charger, r)
		}
	}

	var header http.Header
	if proto != "" {
		header = http.Header{"Sec-WebSocket-Protocol": []string{proto}}
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", zap.String("source_ip", sourceIP), zap.Error(err))
		return
	}

	lc := NewLiveConnection(conn, serial, 0, sourceIP, proto)

	if idErr != nil {
		telemetry.ConnectionRejectionsTotal.WithLabelValues("identity").Inc()
		s.log.Warn("Rejecting connection: unresolvable identity",
			zap.String("source_ip", sourceIP),
			zap.Error(idErr),
		)
		lc.CloseWithCode(CloseCodeIdentityRejected, "charge point identity missing or invalid")
		return
	}

	if authFailed {
		telemetry.ConnectionRejectionsTotal.WithLabelValues("auth").Inc()
		s.log.Warn("Rejecting connection: basic auth failed",
			zap.String("charge_point_id", serial),
			zap.String("source_ip", sourceIP),
		)
		lc.CloseWithCode(CloseCodeAuthFailed, "authentication failed")
		return
	}

	if charger != nil {
		lc.ForwardURL = charger.ForwardURL
	}

	if !s.gw.registry.Register(lc.Key(), lc) {
		telemetry.ConnectionRejectionsTotal.WithLabelValues("rate_limit").Inc()
		s.log.Warn("Rejecting connection: rate limited",
			zap.String("charge_point_id", serial),
			zap.String("source_ip", sourceIP),
		)
		lc.CloseWithCode(CloseCodeRateLimited, "connection rate limit exceeded")
		return
	}

	s.gw.serveConnection(lc)
}

// serveConnection runs the sequential read loop for one charge point.
// It returns when the socket closes; nothing inside may panic out.
func (g *Gateway) serveConnection(lc *LiveConnection) {
	ctx := context.Background()
	serial := lc.Serial

	telemetry.ConnectedChargers.Inc()
	g.log.Info("Charge point connected",
		zap.String("charge_point_id", serial),
		zap.String("source_ip", lc.SourceIP),
		zap.String("subprotocol", lc.Protocol),
	)

	g.pool.Submit(ctx, func(ctx context.Context) error {
		return g.devices.MarkConnected(ctx, serial, lc.Protocol)
	})
	g.publishEvent("gateway.charger.connected", map[string]interface{}{
		"chargePointId": serial,
		"sourceIp":      lc.SourceIP,
		"subprotocol":   lc.Protocol,
	})

	defer func() {
		g.registry.Release(lc.Key(), lc)
		lc.Close()
		telemetry.ConnectedChargers.Dec()

		g.pool.Submit(ctx, func(ctx context.Context) error {
			return g.devices.MarkDisconnected(ctx, serial)
		})
		g.publishEvent("gateway.charger.disconnected", map[string]interface{}{
			"chargePointId": serial,
		})
		g.log.Info("Charge point disconnected", zap.String("charge_point_id", serial))
	}()

	for {
		data, err := lc.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.log.Warn("Websocket read error",
					zap.String("charge_point_id", serial),
					zap.Error(err),
				)
			}
			return
		}
		g.HandleFrame(ctx, lc, data)
	}
}
