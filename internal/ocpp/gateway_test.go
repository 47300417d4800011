package ocpp

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeSocket captures outbound frames instead of writing to a network.
type fakeSocket struct {
	mu        sync.Mutex
	frames    [][]byte
	closeSent []byte
	closed    bool
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	return 0, nil, io.EOF
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.CloseMessage {
		f.closeSent = data
		return nil
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeSocket) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSocket) lastFrame() []byte {
	frames := f.sentFrames()
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

func (f *fakeSocket) closeCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.closeSent) < 2 {
		return 0
	}
	return int(f.closeSent[0])<<8 | int(f.closeSent[1])
}

type gatewayMocks struct {
	devices      *mocks.MockDeviceService
	transactions *mocks.MockTransactionService
	chargers     *mocks.MockChargerRepository
	workflows    *mocks.MockWorkflowRepository
	cache        *mocks.MockCache
	notifier     *mocks.MockNotifier
	signer       *mocks.MockCertificateSigner
	queue        *mocks.MockMessageQueue
}

func newTestGateway(t *testing.T, cfg Config) (*Gateway, *gatewayMocks) {
	t.Helper()

	m := &gatewayMocks{
		devices:      &mocks.MockDeviceService{},
		transactions: &mocks.MockTransactionService{},
		chargers:     &mocks.MockChargerRepository{},
		workflows:    &mocks.MockWorkflowRepository{},
		cache:        &mocks.MockCache{},
		notifier:     &mocks.MockNotifier{},
		signer:       &mocks.MockCertificateSigner{},
		queue:        &mocks.MockMessageQueue{},
	}

	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 32
	}

	g := New(cfg, Deps{
		Devices:      m.devices,
		Transactions: m.transactions,
		Chargers:     m.chargers,
		Workflows:    m.workflows,
		Cache:        m.cache,
		Notifier:     m.notifier,
		Signer:       m.signer,
		Queue:        m.queue,
	}, newTestLogger())

	return g, m
}

// connect registers a fake live connection on the gateway.
func connect(t *testing.T, g *Gateway, serial string) (*LiveConnection, *fakeSocket) {
	t.Helper()

	sock := &fakeSocket{}
	lc := NewLiveConnection(sock, serial, 0, "203.0.113.10", "ocpp1.6")
	if !g.registry.Register(lc.Key(), lc) {
		t.Fatalf("registering test connection for %s failed", serial)
	}
	return lc, sock
}

func decodeFrame(t *testing.T, data []byte) []json.RawMessage {
	t.Helper()

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		t.Fatalf("frame is not a JSON array: %v", err)
	}
	return parts
}
