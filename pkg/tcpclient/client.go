package tcpclient

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrTimeout          = errors.New("operation timed out")
	ErrFrameTooLarge    = errors.New("frame exceeds size limit")
)

// maxFrameSize bounds a single response payload. Probability vectors are
// tiny; anything bigger means a corrupted stream.
const maxFrameSize = 64 << 20

// TCPClient is a pooled request/response client speaking length-prefixed
// frames: a 4-byte big-endian payload size followed by the payload. A call
// holds one connection for its full round trip.
type TCPClient struct {
	address     string
	timeout     time.Duration
	maxRetries  int
	connections chan net.Conn
	tlsConfig   *tls.Config
	logger      *zap.Logger
	closeOnce   sync.Once
}

type TCPClientOption func(*TCPClient)

func WithTLS(config *tls.Config) TCPClientOption {
	return func(c *TCPClient) {
		c.tlsConfig = config
	}
}

func WithLogger(logger *zap.Logger) TCPClientOption {
	return func(c *TCPClient) {
		c.logger = logger
	}
}

func WithMaxRetries(n int) TCPClientOption {
	return func(c *TCPClient) {
		c.maxRetries = n
	}
}

func NewTCPClient(address string, timeout time.Duration, poolSize int, opts ...TCPClientOption) (*TCPClient, error) {
	client := &TCPClient{
		address:     address,
		timeout:     timeout,
		maxRetries:  3,
		connections: make(chan net.Conn, poolSize),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	for i := 0; i < poolSize; i++ {
		conn, err := client.dial()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize connection pool: %w", err)
		}
		client.connections <- conn
	}

	return client, nil
}

func (c *TCPClient) dial() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.timeout}
	if c.tlsConfig != nil {
		return tls.DialWithDialer(dialer, "tcp", c.address, c.tlsConfig)
	}
	return dialer.Dial("tcp", c.address)
}

// getConnection checks a connection out of the pool. A nil slot marks a
// connection that broke earlier and could not be redialed at the time; it
// is redialed now.
func (c *TCPClient) getConnection() (net.Conn, error) {
	select {
	case conn, ok := <-c.connections:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if conn == nil {
			return c.dial()
		}
		return conn, nil
	case <-time.After(c.timeout):
		return nil, ErrTimeout
	}
}

func (c *TCPClient) releaseConnection(conn net.Conn) {
	c.connections <- conn
}

// discardConnection closes a broken connection and refills its pool slot,
// with nil as a placeholder when the redial fails.
func (c *TCPClient) discardConnection(conn net.Conn) {
	conn.Close()

	fresh, err := c.dial()
	if err != nil {
		c.logger.Warn("failed to redial after broken connection", zap.Error(err))
		c.connections <- nil
		return
	}

	c.connections <- fresh
}

// Call sends one payload and returns the peer's response payload, retrying
// on a fresh connection when the round trip fails.
func (c *TCPClient) Call(ctx context.Context, payload []byte) ([]byte, error) {
	var (
		err  error
		resp []byte
	)
	for i := 0; i < c.maxRetries; i++ {
		if resp, err = c.call(ctx, payload); err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.logger.Warn("request failed, retrying", zap.Error(err), zap.Int("attempt", i+1))
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}

func (c *TCPClient) call(ctx context.Context, payload []byte) ([]byte, error) {
	conn, err := c.getConnection()
	if err != nil {
		return nil, err
	}

	healthy := false
	defer func() {
		if healthy {
			c.releaseConnection(conn)
		} else {
			c.discardConnection(conn)
		}
	}()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)))
	if _, err := conn.Write(size[:]); err != nil {
		return nil, fmt.Errorf("failed to send frame size: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to send frame: %w", err)
	}

	if _, err := io.ReadFull(conn, size[:]); err != nil {
		return nil, fmt.Errorf("failed to receive frame size: %w", err)
	}

	n := binary.BigEndian.Uint32(size[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	resp := make([]byte, n)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, fmt.Errorf("failed to receive frame: %w", err)
	}

	healthy = true
	return resp, nil
}

func (c *TCPClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.connections)
		for conn := range c.connections {
			if conn == nil {
				continue
			}
			if err := conn.Close(); err != nil {
				c.logger.Error("failed to close connection", zap.Error(err))
			}
		}
	})

	return nil
}
