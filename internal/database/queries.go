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

const (
	// Account queries
	queryGetAccount = `
		SELECT id, username, balance, created_at, last_active_at
		FROM accounts
		WHERE id = ?`

	queryInsertAccount = `
		INSERT INTO accounts (id, username, balance, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	queryTouchAccount = `
		UPDATE accounts
		SET username = CASE WHEN ? != '' THEN ? ELSE username END, last_active_at = ?
		WHERE id = ?`

	queryListAccountIds = `
		SELECT id FROM accounts ORDER BY id`

	// Balance queries
	queryGetBalance = `
		SELECT balance FROM accounts WHERE id = ?`

	queryConditionalDebit = `
		UPDATE accounts
		SET balance = balance - ?
		WHERE id = ? AND balance >= ?
		RETURNING balance`

	queryIncrementBalance = `
		UPDATE accounts
		SET balance = balance + ?
		WHERE id = ?
		RETURNING balance`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0) AS calculated_balance
		FROM ledger
		WHERE account_id = ?`

	// Ledger queries
	queryInsertEntry = `
		INSERT INTO ledger (account_id, kind, amount, balance_after, payment_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(payment_ref) DO NOTHING
		RETURNING id`

	queryGetHistory = `
		SELECT id, account_id, kind, amount, balance_after, payment_ref, created_at
		FROM ledger
		WHERE account_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`

	// Generation queries
	queryInsertGeneration = `
		INSERT INTO generations (account_id, debit_entry_id, prompt, reference_count, result_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryCountGenerations = `
		SELECT COUNT(*) FROM generations WHERE account_id = ?`

	queryTopAccounts = `
		SELECT g.account_id, COALESCE(a.username, ''), COUNT(*) AS cnt
		FROM generations g
		LEFT JOIN accounts a ON a.id = g.account_id
		GROUP BY g.account_id
		ORDER BY cnt DESC, g.account_id ASC
		LIMIT ?`

	// Summary queries
	querySummaryTotals = `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'debit_spend' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN kind = 'debit_spend' THEN account_id END),
			COALESCE(SUM(CASE WHEN kind = 'credit_purchase' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'credit_purchase' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'credit_refund' THEN 1 ELSE 0 END), 0)
		FROM ledger
		WHERE created_at >= ? AND created_at < ?`

	querySummaryTop = `
		SELECT l.account_id, COALESCE(a.username, ''), COUNT(*) AS cnt
		FROM ledger l
		LEFT JOIN accounts a ON a.id = l.account_id
		WHERE l.kind = 'debit_spend' AND l.created_at >= ? AND l.created_at < ?
		GROUP BY l.account_id
		ORDER BY cnt DESC, l.account_id ASC
		LIMIT ?`
)
