package store

import (
	"context"
	"errors"
	"time"

	"stars-imagegen-bot/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid entry kind")
	ErrAccountNotFound    = errors.New("account not found")
	ErrBalanceMismatch    = errors.New("balance mismatch")
)

// LedgerStore defines the contract that every backend must satisfy.
//
// Every balance change and the ledger entry describing it are committed
// together, so an account balance always equals the sum of its entries.
type LedgerStore interface {
	// --- Accounts ---
	GetOrCreateAccount(ctx context.Context, accountId int64, username string) (*models.Account, error)
	GetAccount(ctx context.Context, accountId int64) (*models.Account, error)
	ListAccountIds(ctx context.Context) ([]int64, error)

	// --- Balance mutations ---
	TryDebit(ctx context.Context, accountId, amount int64) (*models.DebitResult, error)
	Credit(ctx context.Context, params models.CreditParams) (*models.CreditResult, error)

	// --- Usage ---
	RecordGeneration(ctx context.Context, record models.GenerationRecord) error
	CountGenerations(ctx context.Context, accountId int64) (int64, error)
	TopAccounts(ctx context.Context, limit int) ([]models.AccountUsage, error)
	DailySummary(ctx context.Context, start, end time.Time, topN int) (*models.DailySummary, error)

	// --- Audit ---
	GetHistory(ctx context.Context, accountId int64, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, accountId int64) error

	// --- Lifecycle ---
	Close()
}
