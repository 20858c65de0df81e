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

package database

import (
	"context"
	"fmt"
	"time"

	"stars-imagegen-bot/internal/models"
)

// RecordGeneration stores a successful generation. The matching debit_spend
// entry was written by TryDebit; this row only feeds usage statistics.
func (s *Service) RecordGeneration(ctx context.Context, record models.GenerationRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, queryInsertGeneration,
		record.AccountId, record.DebitEntryId, record.Prompt, record.ReferenceCount,
		record.ResultUrl, formatTime(createdAt))
	if err != nil {
		return unavailable("insert generation", err)
	}
	return nil
}

func (s *Service) CountGenerations(ctx context.Context, accountId int64) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountGenerations, accountId).Scan(&count); err != nil {
		return 0, unavailable("count generations", err)
	}
	return count, nil
}

// TopAccounts ranks accounts by all-time successful generations.
func (s *Service) TopAccounts(ctx context.Context, limit int) ([]models.AccountUsage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, queryTopAccounts, limit)
	if err != nil {
		return nil, unavailable("top accounts", err)
	}
	defer closeRows(rows)

	var usage []models.AccountUsage
	for rows.Next() {
		var u models.AccountUsage
		if err := rows.Scan(&u.AccountId, &u.Username, &u.Count); err != nil {
			return nil, unavailable("scan top account", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate top accounts", err)
	}
	return usage, nil
}

// DailySummary aggregates ledger entries created within [start, end). The
// ranking is ordered by spend count descending, then account id ascending.
func (s *Service) DailySummary(ctx context.Context, start, end time.Time, topN int) (*models.DailySummary, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("summary range is empty: start %s, end %s", start, end)
	}

	from, to := formatTime(start), formatTime(end)
	summary := &models.DailySummary{Start: start.UTC(), End: end.UTC(), Top: []models.AccountUsage{}}

	err := s.db.QueryRowContext(ctx, querySummaryTotals, from, to).Scan(
		&summary.TotalSpendCount,
		&summary.UniqueAccounts,
		&summary.PurchaseCount,
		&summary.PurchasedCredits,
		&summary.RefundCount)
	if err != nil {
		return nil, unavailable("summary totals", err)
	}

	if topN <= 0 {
		return summary, nil
	}

	rows, err := s.db.QueryContext(ctx, querySummaryTop, from, to, topN)
	if err != nil {
		return nil, unavailable("summary ranking", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var u models.AccountUsage
		if err := rows.Scan(&u.AccountId, &u.Username, &u.Count); err != nil {
			return nil, unavailable("scan summary ranking", err)
		}
		summary.Top = append(summary.Top, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate summary ranking", err)
	}
	return summary, nil
}
