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
	"strings"
	"sync"
	"time"

	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/metrics"
	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"
	"stars-imagegen-bot/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRefundFailed means a debit could not be compensated after a failed
// generation. The account is short by the cost of one image until an
// operator intervenes.
var ErrRefundFailed = errors.New("refund failed")

// ErrInvalidTransition means an interaction was driven out of order.
var ErrInvalidTransition = errors.New("invalid interaction transition")

const refundTimeout = 10 * time.Second

// Generator produces an image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, referenceImages []string) (*gateway.Result, error)
}

// Outcome is the user-visible result of one generation interaction.
type Outcome string

const (
	OutcomeSucceeded           Outcome = "succeeded"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomeFailed              Outcome = "failed"
)

type GenerationRequest struct {
	AccountId       int64
	Username        string
	Prompt          string
	ReferenceImages []string
	// OnStarted, if set, runs once the debit is applied and before the
	// gateway is called.
	OnStarted func()
}

type GenerationResult struct {
	InteractionId string
	Outcome       Outcome
	ImageUrl      string
	Balance       int64
	Cost          int64
	// Failure holds the gateway error when Outcome is OutcomeFailed.
	Failure  error
	Refunded bool
}

type state int

const (
	stateIdle state = iota
	stateAwaitingGeneration
)

func (st state) String() string {
	switch st {
	case stateIdle:
		return "idle"
	case stateAwaitingGeneration:
		return "awaiting_generation"
	default:
		return fmt.Sprintf("state(%d)", int(st))
	}
}

// interaction carries one request through Idle -> AwaitingGeneration -> Idle.
type interaction struct {
	id      string
	req     GenerationRequest
	state   state
	debit   *models.DebitResult
	started time.Time
}

// expect checks that the interaction is in st before a transition.
func (it *interaction) expect(st state) error {
	if it.state != st {
		return fmt.Errorf("%w: interaction %s is %s, expected %s", ErrInvalidTransition, it.id, it.state, st)
	}
	return nil
}

// GenerationService charges for a generation before calling the gateway and
// compensates the charge when the gateway fails. No lock is held across the
// gateway call; atomicity lives in the two ledger transactions.
type GenerationService struct {
	store     store.LedgerStore
	generator Generator
	notifier  notify.Notifier
	cost      int64
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[int64]int
}

func NewGenerationService(s store.LedgerStore, generator Generator, notifier notify.Notifier, cost int64) *GenerationService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cost <= 0 {
		cost = 1
	}
	return &GenerationService{
		store:     s,
		generator: generator,
		notifier:  notifier,
		cost:      cost,
		now:       time.Now,
		inFlight:  make(map[int64]int),
	}
}

// Cost is the price of one generation in credits.
func (s *GenerationService) Cost() int64 {
	return s.cost
}

// InFlight returns how many generations the account is waiting on.
func (s *GenerationService) InFlight(accountId int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[accountId]
}

// Generate runs one interaction. An InsufficientBalance outcome and a failed
// generation are reported through the result; the returned error is reserved
// for storage failures and ErrRefundFailed.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	it := &interaction{
		id:      uuid.NewString(),
		req:     req,
		state:   stateIdle,
		started: s.now(),
	}
	it.req.Prompt = strings.TrimSpace(req.Prompt)
	ctx = models.WithInteractionContext(ctx, &models.InteractionContext{
		InteractionId: it.id,
		AccountId:     req.AccountId,
	})

	log := zap.L().With(zap.String("interaction_id", it.id), zap.Int64("account_id", req.AccountId))

	if it.req.Prompt == "" {
		return nil, gateway.ErrEmptyPrompt
	}

	result, err := s.begin(ctx, it)
	if err != nil || result != nil {
		if result != nil {
			metrics.GenerationOutcomes.WithLabelValues(string(result.Outcome)).Inc()
			log.Info("Generation not started", zap.String("outcome", string(result.Outcome)), zap.Int64("balance", result.Balance))
		}
		return result, err
	}

	if req.OnStarted != nil {
		req.OnStarted()
	}

	s.track(req.AccountId, 1)
	genResult, genErr := s.generator.Generate(ctx, it.req.Prompt, it.req.ReferenceImages)
	s.track(req.AccountId, -1)

	if genErr == nil {
		result, err = s.complete(ctx, it, genResult)
		if err != nil {
			return nil, err
		}
		metrics.GenerationOutcomes.WithLabelValues(string(result.Outcome)).Inc()
		return result, nil
	}

	result, err = s.compensate(ctx, it, genErr)
	if result == nil {
		return nil, err
	}
	metrics.GenerationOutcomes.WithLabelValues(string(result.Outcome) + ":" + gateway.Kind(genErr)).Inc()
	return result, err
}

// begin moves Idle -> AwaitingGeneration by debiting the account. A non-nil
// result means the interaction ended without leaving Idle.
func (s *GenerationService) begin(ctx context.Context, it *interaction) (*GenerationResult, error) {
	if err := it.expect(stateIdle); err != nil {
		return nil, err
	}

	account, err := s.store.GetOrCreateAccount(ctx, it.req.AccountId, it.req.Username)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", it.req.AccountId, err)
	}

	if account.Balance < s.cost {
		return s.insufficient(it, account.Balance), nil
	}

	debit, err := s.store.TryDebit(ctx, it.req.AccountId, s.cost)
	if err != nil {
		return nil, fmt.Errorf("debit account %d: %w", it.req.AccountId, err)
	}
	if !debit.Applied {
		// another interaction spent the balance in between
		return s.insufficient(it, debit.Balance), nil
	}

	metrics.LedgerEntries.WithLabelValues(string(models.KindDebitSpend)).Inc()
	it.debit = debit
	it.state = stateAwaitingGeneration
	zap.L().Info("Generation started",
		zap.String("interaction_id", it.id),
		zap.Int64("account_id", it.req.AccountId),
		zap.Int64("debit_entry_id", debit.EntryId),
		zap.Int64("balance", debit.Balance),
		zap.Int("reference_images", len(it.req.ReferenceImages)))
	return nil, nil
}

// complete moves AwaitingGeneration -> Idle after a successful generation.
// The debit already stands; recording usage and notifying are best effort.
func (s *GenerationService) complete(ctx context.Context, it *interaction, generated *gateway.Result) (*GenerationResult, error) {
	if err := it.expect(stateAwaitingGeneration); err != nil {
		return nil, err
	}
	it.state = stateIdle

	err := s.store.RecordGeneration(ctx, models.GenerationRecord{
		AccountId:      it.req.AccountId,
		DebitEntryId:   it.debit.EntryId,
		Prompt:         it.req.Prompt,
		ReferenceCount: len(it.req.ReferenceImages),
		ResultUrl:      generated.Url,
		CreatedAt:      s.now(),
	})
	if err != nil {
		zap.L().Warn("Failed to record generation",
			zap.String("interaction_id", it.id),
			zap.Int64("account_id", it.req.AccountId),
			zap.Error(err))
	}

	s.notifier.Notify(ctx, notify.GenerationEvent(it.req.AccountId, it.req.Username, it.req.Prompt,
		len(it.req.ReferenceImages), generated.Url, s.now()))

	zap.L().Info("Generation completed",
		zap.String("interaction_id", it.id),
		zap.Int64("account_id", it.req.AccountId),
		zap.String("provider", generated.Provider),
		zap.Duration("elapsed", s.now().Sub(it.started)))

	return &GenerationResult{
		InteractionId: it.id,
		Outcome:       OutcomeSucceeded,
		ImageUrl:      generated.Url,
		Balance:       it.debit.Balance,
		Cost:          s.cost,
	}, nil
}

// compensate moves AwaitingGeneration -> Idle after a failed generation by
// crediting the debit back. The refund is keyed on the debit entry, so it
// can be retried without crediting twice.
func (s *GenerationService) compensate(ctx context.Context, it *interaction, genErr error) (*GenerationResult, error) {
	if err := it.expect(stateAwaitingGeneration); err != nil {
		return nil, err
	}
	it.state = stateIdle

	result := &GenerationResult{
		InteractionId: it.id,
		Outcome:       OutcomeFailed,
		Balance:       it.debit.Balance,
		Cost:          s.cost,
		Failure:       genErr,
	}

	// the refund must land even when the user's request was cancelled
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	credit, err := s.store.Credit(refundCtx, models.CreditParams{
		AccountId:  it.req.AccountId,
		Username:   it.req.Username,
		Amount:     s.cost,
		Kind:       models.KindCreditRefund,
		PaymentRef: fmt.Sprintf("refund:%d", it.debit.EntryId),
	})
	if err != nil {
		metrics.RefundFailures.Inc()
		zap.L().Error("Refund failed, account left debited",
			zap.String("interaction_id", it.id),
			zap.Int64("account_id", it.req.AccountId),
			zap.Int64("debit_entry_id", it.debit.EntryId),
			zap.Int64("amount", s.cost),
			zap.NamedError("generation_error", genErr),
			zap.Error(err))
		s.notifier.Notify(ctx, notify.AlertEvent(
			"Refund failed for account %d (debit entry %d, %d credits): %v",
			it.req.AccountId, it.debit.EntryId, s.cost, err))
		return result, fmt.Errorf("%w for debit entry %d: %w", ErrRefundFailed, it.debit.EntryId, err)
	}

	if credit.Applied {
		metrics.LedgerEntries.WithLabelValues(string(models.KindCreditRefund)).Inc()
	}
	result.Refunded = true
	result.Balance = credit.Balance

	if errors.Is(genErr, gateway.ErrInsufficientProviderCredit) {
		s.notifier.Notify(ctx, notify.AlertEvent("Generation provider is out of credit: %v", genErr))
	}

	zap.L().Info("Generation failed, debit refunded",
		zap.String("interaction_id", it.id),
		zap.Int64("account_id", it.req.AccountId),
		zap.String("failure", gateway.Kind(genErr)),
		zap.Int64("balance", credit.Balance),
		zap.Error(genErr))
	return result, nil
}

func (s *GenerationService) insufficient(it *interaction, balance int64) *GenerationResult {
	return &GenerationResult{
		InteractionId: it.id,
		Outcome:       OutcomeInsufficientBalance,
		Balance:       balance,
		Cost:          s.cost,
	}
}

func (s *GenerationService) track(accountId int64, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[accountId] += delta
	if s.inFlight[accountId] <= 0 {
		delete(s.inFlight, accountId)
	}
	metrics.GenerationsInFlight.Add(float64(delta))
}
