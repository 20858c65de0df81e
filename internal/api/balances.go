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

package api

import (
	"context"
	"errors"
	"fmt"

	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Overview returns the account with its usage counters, creating the
// account on first contact.
func (s *LedgerService) Overview(ctx context.Context, accountId int64, username string) (*models.AccountOverview, error) {
	if accountId == 0 {
		return nil, fmt.Errorf("account_id is required")
	}

	account, err := s.store.GetOrCreateAccount(ctx, accountId, username)
	if err != nil {
		zap.L().Error("Failed to get account", zap.Int64("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve account: %w", err)
	}

	generations, err := s.store.CountGenerations(ctx, accountId)
	if err != nil {
		zap.L().Error("Failed to count generations", zap.Int64("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve usage: %w", err)
	}

	overview := &models.AccountOverview{Account: *account, Generations: generations}
	if s.inFlight != nil {
		overview.InFlight = s.inFlight.InFlight(accountId)
	}
	return overview, nil
}

// Balance returns the current balance of an existing account.
func (s *LedgerService) Balance(ctx context.Context, accountId int64) (int64, error) {
	account, err := s.store.GetAccount(ctx, accountId)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve balance: %w", err)
	}
	return account.Balance, nil
}

// History returns the newest ledger entries of an account. A limit outside
// 1..100 is clamped; zero selects the default of 20.
func (s *LedgerService) History(ctx context.Context, accountId int64, limit, offset int) ([]models.TransactionRecord, error) {
	if accountId == 0 {
		return nil, fmt.Errorf("account_id is required")
	}
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.GetHistory(ctx, accountId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get history", zap.Int64("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve history: %w", err)
	}

	records := make([]models.TransactionRecord, len(entries))
	for i, entry := range entries {
		records[i] = models.TransactionRecord{
			Id:           entry.Id,
			Kind:         entry.Kind,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    entry.CreatedAt,
		}
		if entry.PaymentRef != nil {
			records[i].PaymentRef = *entry.PaymentRef
		}
	}
	return records, nil
}

// Leaderboard ranks accounts by all-time successful generations.
func (s *LedgerService) Leaderboard(ctx context.Context, limit int) ([]models.AccountUsage, error) {
	usage, err := s.store.TopAccounts(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve leaderboard: %w", err)
	}
	return usage, nil
}

// Reconcile checks every account balance against its ledger and returns the
// ids that do not match.
func (s *LedgerService) Reconcile(ctx context.Context) ([]int64, error) {
	ids, err := s.store.ListAccountIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var mismatched []int64
	for _, id := range ids {
		if err := s.store.ReconcileBalance(ctx, id); err != nil {
			if errors.Is(err, store.ErrStorageUnavailable) {
				return nil, fmt.Errorf("failed to reconcile account %d: %w", id, err)
			}
			zap.L().Warn("Account failed reconciliation", zap.Int64("account_id", id), zap.Error(err))
			mismatched = append(mismatched, id)
		}
	}
	return mismatched, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
