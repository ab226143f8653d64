package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"skysignal/internal/signal"
)

// EAMAPIConfig configures the interval-fetch adapter for the upstream
// EAM observation API.
type EAMAPIConfig struct {
	BaseURL      string
	APIToken     string
	PollInterval time.Duration
	InitialLimit int
}

// EAMAPIPoller polls the EAM REST endpoint, passing since=<lastID>
// once an observation has been seen.
type EAMAPIPoller struct {
	state
	cfg    EAMAPIConfig
	onRaw  RawFunc
	client *http.Client
	logger *log.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastID int64

	// Rate-limit adaptation, as in the ADS-B poller: a 429 slows the
	// cadence until two clean polls restore it.
	interval     time.Duration
	successNeeds int
}

const (
	eamBackoffFactor   = 3
	eamRateLimitedPoll = 15 * time.Second
)

// NewEAMAPIPoller builds the poller.
func NewEAMAPIPoller(cfg EAMAPIConfig, onRaw RawFunc, logger *log.Logger) *EAMAPIPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.InitialLimit <= 0 {
		cfg.InitialLimit = 50
	}
	return &EAMAPIPoller{
		cfg:      cfg,
		onRaw:    onRaw,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.WithPrefix("eam-api"),
		interval: cfg.PollInterval,
	}
}

func (p *EAMAPIPoller) Name() string { return "eam_watch" }

// Start begins polling. Idempotent.
func (p *EAMAPIPoller) Start() error {
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

// Stop halts polling.
func (p *EAMAPIPoller) Stop() error {
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

func (p *EAMAPIPoller) Status() Status { return p.snapshot() }

func (p *EAMAPIPoller) pollLoop(ctx context.Context) {
	defer close(p.done)

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
		if !suspended {
			p.pollOnce(ctx)
		}
		p.mu.Lock()
		next := p.interval
		p.mu.Unlock()
		timer.Reset(next)
	}
}

func (p *EAMAPIPoller) pollOnce(ctx context.Context) {
	q := url.Values{}
	p.mu.Lock()
	lastID := p.lastID
	p.mu.Unlock()
	if lastID > 0 {
		q.Set("since", fmt.Sprintf("%d", lastID))
	} else {
		q.Set("limit", fmt.Sprintf("%d", p.cfg.InitialLimit))
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		p.fail(err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)

	resp, err := p.client.Do(req)
	if err != nil {
		// Timeouts and transport errors: record and continue.
		p.fail(err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		p.logger.Error("api token rejected; source suspended until restarted",
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
			p.interval = p.cfg.PollInterval * eamBackoffFactor
			if p.interval < eamRateLimitedPoll {
				p.interval = eamRateLimitedPoll
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		p.fail(err)
		return
	}

	records, err := decodeEAMResponse(body)
	if err != nil {
		p.fail(err)
		return
	}

	p.setConnected(true)
	p.recovered()

	src := signal.Source{Type: signal.SourceEAM, API: "eam_watch"}
	for i := range records {
		rec := records[i]
		p.countMessage()
		p.onRaw(src, rec)
		if int64(rec.ID) > lastID {
			lastID = int64(rec.ID)
		}
	}

	p.mu.Lock()
	p.lastID = lastID
	p.mu.Unlock()
}

// decodeEAMResponse accepts data[], messages[], or a bare array.
func decodeEAMResponse(body []byte) ([]signal.EAMAPIRecord, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []signal.EAMAPIRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode array response: %w", err)
		}
		return records, nil
	}

	var wrapped signal.EAMAPIResponse
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wrapped.Data) > 0 {
		return wrapped.Data, nil
	}
	return wrapped.Messages, nil
}

// recovered counts a clean poll toward restoring the base cadence.
func (p *EAMAPIPoller) recovered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.successNeeds > 0 {
		p.successNeeds--
		if p.successNeeds == 0 {
			p.interval = p.cfg.PollInterval
		}
	}
}

func (p *EAMAPIPoller) fail(err error) {
	p.setError(err)
	p.setConnected(false)
	p.logger.Warn("poll failed", "err", err)
}
