package sources

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"skysignal/internal/signal"
)

// NATSFeedConfig configures the NATS ACARS relay subscriber.
type NATSFeedConfig struct {
	URL     string
	Subject string
}

// NATSFeed subscribes to an ACARS relay subject on a NATS server. The
// nats client handles reconnection; the adapter mirrors the connection
// state into its status.
type NATSFeed struct {
	state
	cfg    NATSFeedConfig
	onRaw  RawFunc
	logger *log.Logger

	runMu sync.Mutex
	nc    *nats.Conn
	sub   *nats.Subscription

	malformed int64
}

// NewNATSFeed builds the subscriber.
func NewNATSFeed(cfg NATSFeedConfig, onRaw RawFunc, logger *log.Logger) *NATSFeed {
	if cfg.Subject == "" {
		cfg.Subject = "acars.>"
	}
	return &NATSFeed{
		cfg:    cfg,
		onRaw:  onRaw,
		logger: logger.WithPrefix("nats-acars"),
	}
}

func (n *NATSFeed) Name() string { return "natsacars" }

// Start connects and subscribes. Idempotent.
func (n *NATSFeed) Start() error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.nc != nil {
		return nil
	}

	nc, err := nats.Connect(n.cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.setConnected(false)
			n.setError(err)
			n.logger.Warn("disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			n.setConnected(true)
			n.logger.Info("reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("sources: nats connect: %w", err)
	}

	sub, err := nc.Subscribe(n.cfg.Subject, n.handleMsg)
	if err != nil {
		nc.Close()
		return fmt.Errorf("sources: nats subscribe %q: %w", n.cfg.Subject, err)
	}

	n.nc = nc
	n.sub = sub

	n.mu.Lock()
	n.enabled = true
	n.connected = nc.IsConnected()
	n.mu.Unlock()

	n.logger.Info("subscribed", "subject", n.cfg.Subject)
	return nil
}

// Stop drains the subscription and closes the connection.
func (n *NATSFeed) Stop() error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.nc == nil {
		return nil
	}
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
		n.sub = nil
	}
	n.nc.Close()
	n.nc = nil

	n.mu.Lock()
	n.enabled = false
	n.connected = false
	n.mu.Unlock()
	return nil
}

func (n *NATSFeed) Status() Status { return n.snapshot() }

func (n *NATSFeed) handleMsg(msg *nats.Msg) {
	var env signal.ACARSEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil || env.Inner() == nil {
		n.mu.Lock()
		n.malformed++
		n.mu.Unlock()
		return
	}

	src := signal.Source{
		Type: signal.SourceACARS,
		API:  "nats",
	}
	if env.Station != nil {
		src.StationID = env.Station.Ident
	}

	n.countMessage()
	n.onRaw(src, env)
}
