/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package report

import (
	"context"
	"fmt"
	"time"

	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"

	"go.uber.org/zap"
)

// SummaryStore is the ledger read the report needs.
type SummaryStore interface {
	DailySummary(ctx context.Context, start, end time.Time, topN int) (*models.DailySummary, error)
}

// Scheduler sends the previous day's summary to the operator once a day.
type Scheduler struct {
	store    SummaryStore
	notifier notify.Notifier
	loc      *time.Location
	hour     int
	minute   int
	topN     int
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

func NewScheduler(s SummaryStore, notifier notify.Notifier, cfg models.ReportConfig) *Scheduler {
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	return &Scheduler{
		store:    s,
		notifier: notifier,
		loc:      Zone(cfg.UTCOffsetMin),
		hour:     cfg.Hour,
		minute:   cfg.Minute,
		topN:     topN,
		now:      time.Now,
		after:    time.After,
	}
}

// Location is the zone report days are measured in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Build produces the report covering the local day before now.
func (s *Scheduler) Build(ctx context.Context, now time.Time) (string, error) {
	start, end := Window(now, s.loc)
	return s.BuildRange(ctx, start, end)
}

// BuildRange produces the report for an explicit [start, end) range.
func (s *Scheduler) BuildRange(ctx context.Context, start, end time.Time) (string, error) {
	summary, err := s.store.DailySummary(ctx, start, end, s.topN)
	if err != nil {
		return "", fmt.Errorf("unable to build daily summary: %w", err)
	}
	return Format(summary, s.loc), nil
}

// Run blocks until ctx is cancelled, sending one report per day at the
// configured local time. A failed report is logged and skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	zap.L().Info("Daily report scheduler started",
		zap.String("zone", s.loc.String()),
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute))

	for {
		next := NextRun(s.now(), s.loc, s.hour, s.minute)
		wait := next.Sub(s.now())
		zap.L().Debug("Next daily report scheduled", zap.Time("at", next), zap.Duration("in", wait))

		select {
		case <-ctx.Done():
			zap.L().Info("Daily report scheduler stopped")
			return nil
		case <-s.after(wait):
		}

		text, err := s.Build(ctx, next)
		if err != nil {
			zap.L().Error("Daily report failed", zap.Error(err))
			continue
		}
		s.notifier.Notify(ctx, notify.Event{Kind: notify.EventReport, Text: text})
		zap.L().Info("Daily report sent", zap.Time("for", next))
	}
}
