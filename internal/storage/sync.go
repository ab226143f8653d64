package storage

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Syncer periodically pushes unsynced HFGCS aircraft and EAM rows from
// the embedded store to the Postgres central store, then marks them
// synced. Push failures leave rows unsynced for the next pass.
type Syncer struct {
	state    *StateDB
	central  *PostgresDB
	interval time.Duration
	logger   *log.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSyncer builds a sync worker. It does nothing until Start.
func NewSyncer(state *StateDB, central *PostgresDB, interval time.Duration, logger *log.Logger) *Syncer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Syncer{
		state:    state,
		central:  central,
		interval: interval,
		logger:   logger.WithPrefix("sync"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sync loop until Stop.
func (s *Syncer) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.runOnce(ctx)
				cancel()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (s *Syncer) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Syncer) runOnce(ctx context.Context) {
	aircraft, err := s.state.GetUnsyncedHFGCS(ctx)
	if err != nil {
		s.logger.Warn("load unsynced hfgcs", "err", err)
	}
	for i := range aircraft {
		a := &aircraft[i]
		if err := s.central.UpsertHFGCSAircraft(ctx, a); err != nil {
			s.logger.Warn("push hfgcs", "aircraft_id", a.AircraftID, "err", err)
			continue
		}
		_ = s.state.MarkHFGCSSynced(ctx, a.AircraftID)
	}

	eams, err := s.state.GetUnsyncedEAMs(ctx)
	if err != nil {
		s.logger.Warn("load unsynced eams", "err", err)
	}
	for i := range eams {
		e := &eams[i]
		if err := s.central.UpsertEAM(ctx, e); err != nil {
			s.logger.Warn("push eam", "id", e.ID, "err", err)
			continue
		}
		_ = s.state.MarkEAMSynced(ctx, e.ID)
	}

	if len(aircraft) > 0 || len(eams) > 0 {
		s.logger.Debug("sync pass complete", "hfgcs", len(aircraft), "eams", len(eams))
	}
}
