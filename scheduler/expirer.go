// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package scheduler runs the background job that closes polls once their
// deadline has passed.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielhkuo/kidwa/db"
	"github.com/danielhkuo/kidwa/metrics"
	"github.com/danielhkuo/kidwa/models"
	"github.com/danielhkuo/kidwa/notify"
	"github.com/danielhkuo/kidwa/polls"
	"github.com/danielhkuo/kidwa/realtime"
)

// batchSize bounds the polls closed per pass.
const batchSize = 100

// Expirer persists the closed state of polls past ends_at, notifies their
// creators and tells subscribers.
type Expirer struct {
	db       *sql.DB
	log      *zap.Logger
	metrics  *metrics.Metrics
	pub      notify.Publisher
	interval time.Duration

	// Now defaults to db.Now.
	Now func() time.Time
}

func NewExpirer(conn *sql.DB, log *zap.Logger, m *metrics.Metrics, pub notify.Publisher, interval time.Duration) *Expirer {
	return &Expirer{db: conn, log: log, metrics: m, pub: pub, interval: interval, Now: db.Now}
}

// Run calls RunOnce every interval until ctx is cancelled. Pass failures are
// logged and retried on the next tick.
func (e *Expirer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("expiry worker started", zap.Duration("interval", e.interval))
	for {
		if _, err := e.RunOnce(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("expiry pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			e.log.Info("expiry worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce closes every poll currently past its deadline and returns how
// many it closed.
func (e *Expirer) RunOnce(ctx context.Context) (int, error) {
	closed := 0
	for {
		now := e.Now()
		ids, err := polls.Expired(ctx, e.db, now, batchSize)
		if err != nil {
			return closed, err
		}

		for _, id := range ids {
			ok, err := e.expire(ctx, id, now)
			if err != nil {
				return closed, fmt.Errorf("poll %s: %w", id, err)
			}
			if ok {
				closed++
			}
		}

		if len(ids) < batchSize {
			return closed, nil
		}
	}
}

// expire closes one poll and notifies its creator in a single transaction.
// It reports false when another writer closed the poll first.
func (e *Expirer) expire(ctx context.Context, pollID string, now time.Time) (bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := polls.Close(ctx, tx, pollID, now)
	if errors.Is(err, polls.ErrNotOpen) || errors.Is(err, polls.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	n, err := notify.Create(ctx, tx, p.CreatorID, models.NotifyPollClosed, nil, &p.ID, notify.PollClosedMessage(p.Question), now)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit expiry: %w", err)
	}

	e.metrics.PollsClosed.Inc()
	notify.Deliver(e.pub, n)
	e.pub.Publish(realtime.PollTopic(p.ID), realtime.EventPollClosed, p)
	e.log.Info("poll expired", zap.String("poll_id", p.ID), zap.Time("ends_at", p.EndsAt))
	return true, nil
}
