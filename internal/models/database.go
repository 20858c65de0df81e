package models

import "time"

// EntryKind is the business reason recorded on a ledger entry
type EntryKind string

const (
	KindCreditPurchase EntryKind = "credit_purchase"
	KindDebitSpend     EntryKind = "debit_spend"
	KindCreditRefund   EntryKind = "credit_refund"
	KindCreditGrant    EntryKind = "credit_grant"
)

// IsCredit reports whether entries of this kind increase the balance
func (k EntryKind) IsCredit() bool {
	switch k {
	case KindCreditPurchase, KindCreditRefund, KindCreditGrant:
		return true
	}
	return false
}

// Account represents the current balance state of one chat user (hot data)
type Account struct {
	Id           int64     `db:"id"`
	Username     string    `db:"username"`
	Balance      int64     `db:"balance"`
	CreatedAt    time.Time `db:"created_at"`
	LastActiveAt time.Time `db:"last_active_at"`
}

// LedgerEntry represents an immutable balance change (cold data)
type LedgerEntry struct {
	Id           int64     `db:"id"`
	AccountId    int64     `db:"account_id"`
	Kind         EntryKind `db:"kind"`
	Amount       int64     `db:"amount"`
	BalanceAfter int64     `db:"balance_after"`
	PaymentRef   *string   `db:"payment_ref"`
	CreatedAt    time.Time `db:"created_at"`
}

// GenerationRecord represents one successful generation delivered to a user
type GenerationRecord struct {
	Id             int64     `db:"id"`
	AccountId      int64     `db:"account_id"`
	DebitEntryId   int64     `db:"debit_entry_id"`
	Prompt         string    `db:"prompt"`
	ReferenceCount int       `db:"reference_count"`
	ResultUrl      string    `db:"result_url"`
	CreatedAt      time.Time `db:"created_at"`
}
