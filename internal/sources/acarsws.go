package sources

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"skysignal/internal/signal"
)

// ACARSWSConfig configures the push-feed WebSocket client.
type ACARSWSConfig struct {
	// Endpoints are tried in order; the client advances to the next
	// variant after a failed dial.
	Endpoints   []string
	MaxAttempts int
	StationID   string
}

// ACARSWSClient consumes an ACARS push feed over WebSocket. It
// reconnects forever while enabled, with bounded exponential backoff
// that resets on a successful open.
type ACARSWSClient struct {
	state
	cfg    ACARSWSConfig
	onRaw  RawFunc
	logger *log.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	malformed int64
}

const (
	acarsDialTimeout     = 10 * time.Second
	acarsEndpointDelay   = 3 * time.Second
	acarsBackoffInitial  = time.Second
	acarsBackoffCap      = 60 * time.Second
	acarsDefaultAttempts = 5
)

// NewACARSWSClient builds the client.
func NewACARSWSClient(cfg ACARSWSConfig, onRaw RawFunc, logger *log.Logger) *ACARSWSClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = acarsDefaultAttempts
	}
	return &ACARSWSClient{
		cfg:    cfg,
		onRaw:  onRaw,
		logger: logger.WithPrefix("acars-ws"),
	}
}

func (c *ACARSWSClient) Name() string { return "acars" }

// Start begins the connect loop. Idempotent.
func (c *ACARSWSClient) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return nil
	}

	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

// Stop closes the socket and halts reconnection.
func (c *ACARSWSClient) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	<-c.done
	c.cancel = nil

	c.mu.Lock()
	c.enabled = false
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *ACARSWSClient) Status() Status { return c.snapshot() }

// Malformed returns the count of frames that failed to decode.
func (c *ACARSWSClient) Malformed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.malformed
}

func (c *ACARSWSClient) run(ctx context.Context) {
	defer close(c.done)

	backoff := acarsBackoffInitial
	for ctx.Err() == nil {
		conn, endpoint := c.dialAny(ctx)
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > acarsBackoffCap {
				backoff = acarsBackoffCap
			}
			continue
		}

		backoff = acarsBackoffInitial
		c.setConnected(true)
		c.logger.Info("connected", "endpoint", endpoint)
		c.readFrames(ctx, conn)
		c.setConnected(false)
	}
}

// dialAny tries each endpoint variant in order, up to MaxAttempts
// total dials, pausing briefly before advancing to the next variant.
func (c *ACARSWSClient) dialAny(ctx context.Context) (*websocket.Conn, string) {
	attempts := 0
	for _, endpoint := range c.cfg.Endpoints {
		if attempts >= c.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		attempts++

		dialCtx, cancel := context.WithTimeout(ctx, acarsDialTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
		cancel()
		if err == nil {
			return conn, endpoint
		}

		c.setError(err)
		c.logger.Debug("dial failed", "endpoint", endpoint, "err", err)
		select {
		case <-ctx.Done():
			return nil, ""
		case <-time.After(acarsEndpointDelay):
		}
	}
	return nil, ""
}

func (c *ACARSWSClient) readFrames(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	// Close the socket when the context ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	src := signal.Source{
		Type:      signal.SourceACARS,
		StationID: c.cfg.StationID,
		API:       "websocket",
	}

	for {
		ty, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.setError(err)
				c.logger.Warn("read failed; reconnecting", "err", err)
			}
			return
		}
		if ty != websocket.TextMessage {
			continue
		}

		var env signal.ACARSEnvelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Inner() == nil {
			// Malformed frames are counted, never fatal.
			c.mu.Lock()
			c.malformed++
			c.mu.Unlock()
			continue
		}

		c.countMessage()
		c.onRaw(src, env)
	}
}
