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

type rowScanner interface {
	Scan(dest ...any) error
}

// GetOrCreateAccount returns the account, creating it with the starting
// balance when it does not exist yet. Username and last activity are
// refreshed on every call.
func (s *Service) GetOrCreateAccount(ctx context.Context, accountId int64, username string) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin get-or-create", err)
	}
	defer rollback(tx)

	now := s.timestamp()
	created, err := s.ensureAccount(ctx, tx, accountId, username, now)
	if err != nil {
		return nil, err
	}
	if !created {
		if _, err := tx.ExecContext(ctx, queryTouchAccount, username, username, now, accountId); err != nil {
			return nil, unavailable("touch account", err)
		}
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, queryGetAccount, accountId))
	if err != nil {
		return nil, unavailable("read account", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit get-or-create", err)
	}

	if created {
		zap.L().Info("Account created",
			zap.Int64("account_id", accountId),
			zap.String("username", username),
			zap.Int64("starting_balance", account.Balance))
	}
	return account, nil
}

// GetAccount returns an existing account or store.ErrAccountNotFound.
func (s *Service) GetAccount(ctx context.Context, accountId int64) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccount, accountId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", accountId, store.ErrAccountNotFound)
	}
	if err != nil {
		return nil, unavailable("get account", err)
	}
	return account, nil
}

func (s *Service) ListAccountIds(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccountIds)
	if err != nil {
		return nil, unavailable("list accounts", err)
	}
	defer closeRows(rows)

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan account id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate accounts", err)
	}
	return ids, nil
}

// ensureAccount inserts the account inside tx when missing. The starting
// balance is booked as a credit_grant entry so the balance always equals the
// sum of the account's ledger entries.
func (s *Service) ensureAccount(ctx context.Context, tx *sql.Tx, accountId int64, username, now string) (bool, error) {
	result, err := tx.ExecContext(ctx, queryInsertAccount, accountId, username, s.startingBalance, now, now)
	if err != nil {
		return false, unavailable("insert account", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("insert account rows affected", err)
	}
	if inserted == 0 {
		return false, nil
	}

	if s.startingBalance > 0 {
		ref := fmt.Sprintf("signup:%d", accountId)
		var entryId int64
		err := tx.QueryRowContext(ctx, queryInsertEntry,
			accountId, string(models.KindCreditGrant), s.startingBalance, s.startingBalance, ref, now).Scan(&entryId)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, unavailable("insert starting grant", err)
		}
	}
	return true, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var createdAt, lastActiveAt string
	if err := row.Scan(&account.Id, &account.Username, &account.Balance, &createdAt, &lastActiveAt); err != nil {
		return nil, err
	}

	var err error
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if account.LastActiveAt, err = parseTime(lastActiveAt); err != nil {
		return nil, err
	}
	return &account, nil
}
