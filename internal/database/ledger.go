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
	"database/sql"
	"errors"
	"fmt"

	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/store"

	"go.uber.org/zap"
)

// TryDebit atomically checks that the account can cover amount and, if so,
// decrements the balance and appends a debit_spend entry. The conditional
// UPDATE is the only guard: two concurrent debits can never both succeed
// against a balance that covers only one of them.
func (s *Service) TryDebit(ctx context.Context, accountId, amount int64) (*models.DebitResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit of %d: %w", amount, store.ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin debit", err)
	}
	defer rollback(tx)

	var balance int64
	err = tx.QueryRowContext(ctx, queryConditionalDebit, amount, accountId, amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		current, err := currentBalance(ctx, tx, accountId)
		if err != nil {
			return nil, err
		}
		zap.L().Info("Debit rejected, insufficient balance",
			zap.Int64("account_id", accountId),
			zap.Int64("amount", amount),
			zap.Int64("balance", current))
		return &models.DebitResult{Applied: false, Balance: current}, nil
	}
	if err != nil {
		return nil, unavailable("debit balance", err)
	}

	var entryId int64
	err = tx.QueryRowContext(ctx, queryInsertEntry,
		accountId, string(models.KindDebitSpend), -amount, balance, nil, s.timestamp()).Scan(&entryId)
	if err != nil {
		return nil, unavailable("insert debit entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit debit", err)
	}

	zap.L().Info("Debit applied",
		zap.Int64("account_id", accountId),
		zap.Int64("entry_id", entryId),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance))
	return &models.DebitResult{Applied: true, EntryId: entryId, Balance: balance}, nil
}

// Credit increments the balance and appends an entry in one transaction.
// When PaymentRef was already recorded the transaction is rolled back and the
// unchanged balance is returned with Applied=false.
func (s *Service) Credit(ctx context.Context, params models.CreditParams) (*models.CreditResult, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("credit of %d: %w", params.Amount, store.ErrInvalidAmount)
	}
	if !params.Kind.IsCredit() {
		return nil, fmt.Errorf("credit with kind %q: %w", params.Kind, store.ErrInvalidKind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin credit", err)
	}
	defer rollback(tx)

	now := s.timestamp()
	if _, err := s.ensureAccount(ctx, tx, params.AccountId, params.Username, now); err != nil {
		return nil, err
	}

	current, err := currentBalance(ctx, tx, params.AccountId)
	if err != nil {
		return nil, err
	}

	var ref any
	if params.PaymentRef != "" {
		ref = params.PaymentRef
	}

	var entryId int64
	err = tx.QueryRowContext(ctx, queryInsertEntry,
		params.AccountId, string(params.Kind), params.Amount, current+params.Amount, ref, now).Scan(&entryId)
	if errors.Is(err, sql.ErrNoRows) {
		rollback(tx)
		balance, err := s.balanceOrZero(ctx, params.AccountId)
		if err != nil {
			return nil, err
		}
		zap.L().Info("Duplicate payment ref, credit skipped",
			zap.Int64("account_id", params.AccountId),
			zap.String("payment_ref", params.PaymentRef),
			zap.String("kind", string(params.Kind)))
		return &models.CreditResult{Applied: false, Balance: balance}, nil
	}
	if err != nil {
		return nil, unavailable("insert credit entry", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, queryIncrementBalance, params.Amount, params.AccountId).Scan(&balance); err != nil {
		return nil, unavailable("credit balance", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit credit", err)
	}

	zap.L().Info("Credit applied",
		zap.Int64("account_id", params.AccountId),
		zap.Int64("entry_id", entryId),
		zap.String("kind", string(params.Kind)),
		zap.Int64("amount", params.Amount),
		zap.String("payment_ref", params.PaymentRef),
		zap.Int64("balance", balance))
	return &models.CreditResult{Applied: true, EntryId: entryId, Balance: balance}, nil
}

// GetHistory returns the account's ledger entries, newest first.
func (s *Service) GetHistory(ctx context.Context, accountId int64, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetHistory, accountId, limit, offset)
	if err != nil {
		return nil, unavailable("get history", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var ref sql.NullString
		var createdAt string
		if err := rows.Scan(&entry.Id, &entry.AccountId, &entry.Kind, &entry.Amount,
			&entry.BalanceAfter, &ref, &createdAt); err != nil {
			return nil, unavailable("scan ledger entry", err)
		}
		if ref.Valid {
			entry.PaymentRef = &ref.String
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate ledger", err)
	}
	return entries, nil
}

// ReconcileBalance verifies that the stored balance equals the sum of the
// account's ledger entries.
func (s *Service) ReconcileBalance(ctx context.Context, accountId int64) error {
	var balance int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, accountId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %d: %w", accountId, store.ErrAccountNotFound)
	}
	if err != nil {
		return unavailable("get balance", err)
	}

	var calculated int64
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, accountId).Scan(&calculated); err != nil {
		return unavailable("sum ledger", err)
	}

	if balance != calculated {
		zap.L().Error("Balance reconciliation failed",
			zap.Int64("account_id", accountId),
			zap.Int64("stored_balance", balance),
			zap.Int64("calculated_balance", calculated))
		return fmt.Errorf("account %d stored %d, ledger sums to %d: %w",
			accountId, balance, calculated, store.ErrBalanceMismatch)
	}

	zap.L().Debug("Balance reconciled", zap.Int64("account_id", accountId), zap.Int64("balance", balance))
	return nil
}

func currentBalance(ctx context.Context, tx *sql.Tx, accountId int64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, queryGetBalance, accountId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get balance", err)
	}
	return balance, nil
}

func (s *Service) balanceOrZero(ctx context.Context, accountId int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, accountId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("get balance", err)
	}
	return balance, nil
}
