// Sentinel - Continuous Behavioral Authentication Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerGCService periodically runs BadgerDB's value-log garbage collection
// against a store's underlying database. Both hotstate and coldstate write
// through Badger directly, so without a sweeper their value logs grow
// unbounded as session state and identity models are rewritten.
type BadgerGCService struct {
	db         *badger.DB
	interval   time.Duration
	discardRatio float64
	name       string
}

// NewBadgerGCService creates a GC sweeper for db, running every interval
// (10 minutes if interval is not positive). RunValueLogGC is always called
// with a discard ratio of 0.5 (Badger's documented default recommendation).
func NewBadgerGCService(db *badger.DB, interval time.Duration, name string) *BadgerGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &BadgerGCService{db: db, interval: interval, discardRatio: 0.5, name: name}
}

// Serve implements suture.Service. It runs until ctx is canceled, sweeping
// the value log on each tick. RunValueLogGC is called repeatedly per tick
// until it reports no more rewrites are possible, per Badger's own
// recommended GC loop.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweep(); err != nil {
				return err
			}
		}
	}
}

func (s *BadgerGCService) sweep() error {
	for {
		err := s.db.RunValueLogGC(s.discardRatio)
		if err == nil {
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		return fmt.Errorf("%s: value log gc: %w", s.name, err)
	}
}

// String implements fmt.Stringer for logging.
func (s *BadgerGCService) String() string {
	return s.name
}
