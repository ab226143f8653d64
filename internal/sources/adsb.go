package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"skysignal/internal/signal"
)

// ADSBConfig configures the bounded-area HTTP pull adapter.
type ADSBConfig struct {
	BaseURL      string
	APIKey       string
	Lat          float64
	Lon          float64
	DistNM       int
	PollInterval time.Duration
	StationID    string
}

// ADSBPoller pulls an area snapshot every poll interval and emits the
// records it contains. Aircraft that vanish between snapshots are
// removed from the adapter-local map before the next emission cycle.
type ADSBPoller struct {
	state
	cfg    ADSBConfig
	onRaw  RawFunc
	client *http.Client
	logger *log.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// known tracks the aircraft present in the latest snapshot.
	known map[string]struct{}

	// Rate-limit adaptation: after a 429 the interval grows by
	// backoffFactor until two clean polls at the new cadence.
	interval     time.Duration
	successNeeds int
}

const (
	adsbBackoffFactor   = 3
	adsbRateLimitedPoll = 15 * time.Second
)

// NewADSBPoller builds the poller. The API key may carry an
// "api-auth:" prefix pasted from provider docs; it is stripped. A key
// that does not look like a UUID draws an advisory warning only.
func NewADSBPoller(cfg ADSBConfig, onRaw RawFunc, logger *log.Logger) *ADSBPoller {
	cfg.APIKey = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cfg.APIKey), "api-auth:"))
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	p := &ADSBPoller{
		cfg:      cfg,
		onRaw:    onRaw,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.WithPrefix("adsb"),
		known:    make(map[string]struct{}),
		interval: cfg.PollInterval,
	}

	if cfg.APIKey != "" {
		if _, err := uuid.Parse(cfg.APIKey); err != nil {
			p.logger.Warn("api key does not look like a UUID", "key", redact("api_key", cfg.APIKey))
		}
	}

	return p
}

func (p *ADSBPoller) Name() string { return "adsb" }

// Start begins polling. Starting a running poller is a no-op.
func (p *ADSBPoller) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return nil
	}

	p.mu.Lock()
	p.enabled = true
	p.suspended = false
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.pollLoop(ctx)
	return nil
}

// Stop halts the poll loop and waits for it to exit.
func (p *ADSBPoller) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	p.cancel = nil

	p.mu.Lock()
	p.enabled = false
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *ADSBPoller) Status() Status { return p.snapshot() }

func (p *ADSBPoller) pollLoop(ctx context.Context) {
	defer close(p.done)

	// First poll immediately, then on the adaptive interval.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.mu.Lock()
		suspended := p.suspended
		p.mu.Unlock()
		if suspended {
			// Credentials rejected: stay idle until restarted.
			timer.Reset(time.Minute)
			continue
		}

		p.pollOnce(ctx)

		p.mu.Lock()
		next := p.interval
		p.mu.Unlock()
		timer.Reset(next)
	}
}

func (p *ADSBPoller) pollOnce(ctx context.Context) {
	url := fmt.Sprintf("%s/lat/%g/lon/%g/dist/%d",
		strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Lat, p.cfg.Lon, p.cfg.DistNM)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.fail(err)
		return
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("api-auth", p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.fail(err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through.
	case http.StatusUnauthorized, http.StatusForbidden:
		p.logger.Error("api rejected credentials; source suspended until restarted",
			"status", resp.StatusCode)
		p.mu.Lock()
		p.suspended = true
		p.connected = false
		p.lastErr = ErrAuthRejected.Error()
		p.mu.Unlock()
		return
	case http.StatusTooManyRequests:
		p.mu.Lock()
		if p.successNeeds == 0 {
			p.interval = p.cfg.PollInterval * adsbBackoffFactor
			if p.interval < adsbRateLimitedPoll {
				p.interval = adsbRateLimitedPoll
			}
		}
		p.successNeeds = 2
		p.lastErr = "rate limited"
		p.mu.Unlock()
		p.logger.Warn("rate limited; polling slowed", "interval", p.interval)
		return
	default:
		p.fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		p.fail(err)
		return
	}

	var snap signal.ADSBSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		p.fail(fmt.Errorf("decode snapshot: %w", err))
		return
	}

	p.setConnected(true)
	p.recovered()
	p.handleSnapshot(&snap)
}

// recovered counts a clean poll toward restoring the base cadence.
func (p *ADSBPoller) recovered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.successNeeds > 0 {
		p.successNeeds--
		if p.successNeeds == 0 {
			p.interval = p.cfg.PollInterval
		}
	}
}

func (p *ADSBPoller) handleSnapshot(snap *signal.ADSBSnapshot) {
	records := snap.Records()
	current := make(map[string]struct{}, len(records))

	src := signal.Source{
		Type:      signal.SourceADSB,
		StationID: p.cfg.StationID,
		API:       "area_snapshot",
	}

	for i := range records {
		rec := &records[i]
		id := rec.Identifier()
		if id == "" {
			continue
		}
		// Coordinates must be present and numeric. Zero is a valid
		// coordinate; only absent values are rejected here.
		if rec.Lat == nil || rec.Lon == nil {
			continue
		}
		if !signal.ValidLatLon(*rec.Lat, *rec.Lon) {
			continue
		}
		current[strings.ToLower(id)] = struct{}{}
		p.countMessage()
		p.onRaw(src, *rec)
	}

	// Anything tracked locally but absent from this snapshot is gone.
	p.mu.Lock()
	for id := range p.known {
		if _, ok := current[id]; !ok {
			delete(p.known, id)
		}
	}
	for id := range current {
		p.known[id] = struct{}{}
	}
	p.mu.Unlock()
}

// Known reports whether an aircraft is in the adapter-local map.
func (p *ADSBPoller) Known(hex string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.known[strings.ToLower(hex)]
	return ok
}

func (p *ADSBPoller) fail(err error) {
	p.setError(err)
	p.setConnected(false)
	p.logger.Warn("poll failed", "err", err)
}
