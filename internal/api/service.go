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

	"stars-imagegen-bot/internal/store"
)

// LedgerService is the validated entry point to the ledger for transports
// and operator tools.
type LedgerService struct {
	store    store.LedgerStore
	inFlight InFlightCounter
}

// InFlightCounter reports interactions that currently hold a debit.
type InFlightCounter interface {
	InFlight(accountId int64) int
}

func NewLedgerService(s store.LedgerStore) *LedgerService {
	return &LedgerService{
		store: s,
	}
}

// WithInFlight attaches the generation tracker so balance views can show
// pending generations.
func (s *LedgerService) WithInFlight(counter InFlightCounter) *LedgerService {
	s.inFlight = counter
	return s
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.store.TopAccounts(ctx, 1)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
