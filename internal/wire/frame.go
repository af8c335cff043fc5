package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
)

// MaxControlMessageSize bounds a single control-channel JSON message.
const MaxControlMessageSize = 1 << 20 // 1MB

// ControlConn wraps a net.Conn with length-prefixed JSON framing:
// [4-byte big-endian length][JSON envelope]. Grounded on the teacher's
// internal/ipc length-prefix convention, minus the HMAC/session-key layer
// (see control.go's Envelope doc comment for why).
type ControlConn struct {
	conn net.Conn
	mu   sync.Mutex // serializes writes
}

// NewControlConn wraps an already-connected socket.
func NewControlConn(conn net.Conn) *ControlConn {
	return &ControlConn{conn: conn}
}

func (c *ControlConn) Close() error { return c.conn.Close() }

// Send marshals and writes one Envelope.
func (c *ControlConn) Send(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: marshal envelope: %w", err)
	}
	if len(data) > MaxControlMessageSize {
		return fmt.Errorf("wire: control message too large: %d > %d", len(data), MaxControlMessageSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if _, err := c.conn.Write(header); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// SendTyped is a convenience that wraps payload into an Envelope and sends it.
func (c *ControlConn) SendTyped(msgType string, payload any) error {
	env, err := MarshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Recv reads one length-prefixed Envelope.
func (c *ControlConn) Recv() (*Envelope, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, fmt.Errorf("wire: read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return nil, fmt.Errorf("wire: zero-length control message")
	}
	if length > MaxControlMessageSize {
		return nil, fmt.Errorf("wire: control message too large: %d > %d", length, MaxControlMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: unmarshal envelope: %w", err)
	}
	return &env, nil
}
