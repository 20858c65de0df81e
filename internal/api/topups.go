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
	"fmt"

	"stars-imagegen-bot/internal/metrics"
	"stars-imagegen-bot/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TopUp credits a confirmed payment exactly once. A repeated confirmation
// with the same payment ref reports success with Duplicate set and leaves the
// balance unchanged.
func (s *LedgerService) TopUp(ctx context.Context, payment models.PaymentConfirmation) (*models.TopUpResult, error) {
	zap.L().Info("Processing payment confirmation",
		zap.Int64("account_id", payment.AccountId),
		zap.String("payment_ref", payment.PaymentRef),
		zap.Int64("credits", payment.Credits))

	// Validate input
	if payment.AccountId == 0 || payment.PaymentRef == "" || payment.Credits <= 0 {
		zap.L().Error("Invalid payment parameters",
			zap.Int64("account_id", payment.AccountId),
			zap.String("payment_ref", payment.PaymentRef),
			zap.Int64("credits", payment.Credits))
		return &models.TopUpResult{
			Success: false,
			Error:   "invalid payment parameters",
		}, nil
	}

	result, err := s.store.Credit(ctx, models.CreditParams{
		AccountId:  payment.AccountId,
		Username:   payment.Username,
		Amount:     payment.Credits,
		Kind:       models.KindCreditPurchase,
		PaymentRef: payment.PaymentRef,
	})
	if err != nil {
		zap.L().Error("Payment crediting failed",
			zap.Int64("account_id", payment.AccountId),
			zap.String("payment_ref", payment.PaymentRef),
			zap.Error(err))
		return &models.TopUpResult{
			Success:   false,
			AccountId: payment.AccountId,
			Error:     "payment could not be recorded",
		}, fmt.Errorf("credit payment %s: %w", payment.PaymentRef, err)
	}

	if !result.Applied {
		metrics.DuplicatePayments.Inc()
		zap.L().Info("Duplicate payment confirmation ignored",
			zap.Int64("account_id", payment.AccountId),
			zap.String("payment_ref", payment.PaymentRef),
			zap.Int64("balance", result.Balance))
		return &models.TopUpResult{
			Success:    true,
			Duplicate:  true,
			AccountId:  payment.AccountId,
			NewBalance: result.Balance,
		}, nil
	}

	metrics.LedgerEntries.WithLabelValues(string(models.KindCreditPurchase)).Inc()
	zap.L().Info("Payment credited",
		zap.Int64("account_id", payment.AccountId),
		zap.String("payment_ref", payment.PaymentRef),
		zap.Int64("credits", payment.Credits),
		zap.Int64("balance", result.Balance))

	return &models.TopUpResult{
		Success:    true,
		AccountId:  payment.AccountId,
		Credited:   payment.Credits,
		NewBalance: result.Balance,
	}, nil
}

// ManualCredit grants credits on behalf of an operator. Each call is a
// distinct grant unless ref is supplied, in which case it is idempotent.
func (s *LedgerService) ManualCredit(ctx context.Context, accountId, credits int64, ref string) (*models.CreditResult, error) {
	if accountId == 0 || credits <= 0 {
		return nil, fmt.Errorf("account id and a positive amount are required")
	}
	if ref == "" {
		ref = "manual:" + uuid.NewString()
	}

	result, err := s.store.Credit(ctx, models.CreditParams{
		AccountId:  accountId,
		Amount:     credits,
		Kind:       models.KindCreditGrant,
		PaymentRef: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("manual credit for %d: %w", accountId, err)
	}

	if result.Applied {
		metrics.LedgerEntries.WithLabelValues(string(models.KindCreditGrant)).Inc()
	}
	zap.L().Info("Manual credit processed",
		zap.Int64("account_id", accountId),
		zap.Int64("credits", credits),
		zap.String("payment_ref", ref),
		zap.Bool("applied", result.Applied),
		zap.Int64("balance", result.Balance))
	return result, nil
}
