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

// Timestamps are stored as fixed-width UTC text so that range predicates can
// compare them lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const schema = `
	-- Accounts (current state)
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TEXT NOT NULL,
		last_active_at TEXT NOT NULL
	);

	-- Ledger (append-only audit trail)
	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL CHECK (kind IN ('credit_purchase', 'debit_spend', 'credit_refund', 'credit_grant')),
		amount INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		payment_ref TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_account_id ON ledger(account_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_created_at ON ledger(created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_kind_created_at ON ledger(kind, created_at);

	-- Successful generations
	CREATE TABLE IF NOT EXISTS generations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		debit_entry_id INTEGER NOT NULL REFERENCES ledger(id),
		prompt TEXT NOT NULL,
		reference_count INTEGER NOT NULL DEFAULT 0,
		result_url TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generations_account_id ON generations(account_id);
	CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
	`
