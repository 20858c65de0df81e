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

package models

import (
	"time"
)

// DebitResult is the outcome of an atomic balance check and decrement
type DebitResult struct {
	Applied bool  `json:"applied"`
	EntryId int64 `json:"entry_id,omitempty"`
	Balance int64 `json:"balance"`
}

// CreditParams describes a balance increment. PaymentRef, when set, makes the
// credit idempotent: a second credit with the same ref is ignored.
type CreditParams struct {
	AccountId  int64
	Username   string
	Amount     int64
	Kind       EntryKind
	PaymentRef string
}

// CreditResult is the outcome of a credit. Applied is false when the payment
// ref had already been recorded; Balance is then the unchanged current balance.
type CreditResult struct {
	Applied bool  `json:"applied"`
	EntryId int64 `json:"entry_id,omitempty"`
	Balance int64 `json:"balance"`
}

// AccountUsage pairs an account with a usage count
type AccountUsage struct {
	AccountId int64  `json:"account_id"`
	Username  string `json:"username,omitempty"`
	Count     int64  `json:"count"`
}

// DailySummary aggregates ledger activity over a half-open time range
type DailySummary struct {
	Start            time.Time      `json:"start"`
	End              time.Time      `json:"end"`
	TotalSpendCount  int64          `json:"total_spend_count"`
	UniqueAccounts   int64          `json:"unique_accounts"`
	Top              []AccountUsage `json:"top"`
	PurchaseCount    int64          `json:"purchase_count"`
	PurchasedCredits int64          `json:"purchased_credits"`
	RefundCount      int64          `json:"refund_count"`
}

// PaymentConfirmation is a provider-confirmed purchase to be credited once
type PaymentConfirmation struct {
	AccountId  int64  `json:"account_id"`
	Username   string `json:"username,omitempty"`
	PaymentRef string `json:"payment_ref"`
	Credits    int64  `json:"credits"`
}

// TopUpResult represents the result of processing a payment confirmation
type TopUpResult struct {
	Success    bool   `json:"success"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	AccountId  int64  `json:"account_id,omitempty"`
	Credited   int64  `json:"credited,omitempty"`
	NewBalance int64  `json:"new_balance"`
	Error      string `json:"error,omitempty"`
}

// TransactionRecord represents a ledger entry in the user's history
type TransactionRecord struct {
	Id           int64     `json:"id"`
	Kind         EntryKind `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	PaymentRef   string    `json:"payment_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountOverview is what a user sees for /balance
type AccountOverview struct {
	Account     Account `json:"account"`
	Generations int64   `json:"generations"`
	InFlight    int     `json:"in_flight"`
}
