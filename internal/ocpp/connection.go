package ocpp

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes in the private-use range, one per rejection reason so the
// device (and its operator) can tell why it was cut off.
const (
	CloseCodeIdentityRejected = 4000
	CloseCodeAuthFailed       = 4001
	CloseCodeRateLimited      = 4002
	CloseCodeReplaced         = 4003
)

const writeTimeout = 10 * time.Second

// wsConn is the slice of *websocket.Conn the engine uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// LiveConnection is the handle for one connected charge point. Writes
// are serialized through a mutex; reads happen only on the connection's
// own goroutine.
type LiveConnection struct {
	Serial      string
	Connector   int
	SourceIP    string
	Protocol    string
	ConnectedAt time.Time

	// ForwardURL is the downstream relay target configured on the
	// charger record, captured at connect time. Empty means no relay.
	ForwardURL string

	conn      wsConn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewLiveConnection(conn wsConn, serial string, connector int, sourceIP, protocol string) *LiveConnection {
	return &LiveConnection{
		Serial:      serial,
		Connector:   connector,
		SourceIP:    sourceIP,
		Protocol:    protocol,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Key is the identity key this connection is registered under.
func (c *LiveConnection) Key() string {
	return IdentityKey(c.Serial, c.Connector)
}

// IdentityKey builds the registry key for a serial plus optional
// connector (0 means the whole station).
func IdentityKey(serial string, connector int) string {
	if connector > 0 {
		return fmt.Sprintf("%s#%d", serial, connector)
	}
	return serial
}

// Send writes one text frame. Safe for concurrent use.
func (c *LiveConnection) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseWithCode sends a close frame with the given code and closes the
// underlying socket. Subsequent calls are no-ops.
func (c *LiveConnection) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage, msg)
		c.writeMu.Unlock()
		c.conn.Close()
	})
}

// Close closes the socket without a descriptive close frame.
func (c *LiveConnection) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// ReadMessage blocks until the next frame arrives.
func (c *LiveConnection) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}
