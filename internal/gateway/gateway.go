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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stars-imagegen-bot/internal/metrics"
	"stars-imagegen-bot/internal/models"

	"go.uber.org/zap"
)

// Failure taxonomy. Callers match with errors.Is.
var (
	ErrEmptyPrompt                = errors.New("prompt is empty")
	ErrInsufficientProviderCredit = errors.New("provider account out of credit")
	ErrContentRejected            = errors.New("content rejected by provider")
	ErrTimeout                    = errors.New("generation timed out")
	ErrUpstreamUnavailable        = errors.New("generation provider unavailable")
)

const DefaultTimeout = 60 * time.Second

// Request is a single generation call.
type Request struct {
	Prompt          string
	ReferenceImages []string
}

// Result is the image chosen for the user.
type Result struct {
	Url        string
	Provider   string
	Candidates []string
}

// Provider is one upstream image generation backend. Generate returns
// candidate image URLs in provider order.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]string, error)
}

// Service validates requests, bounds them with a timeout and walks the
// provider chain. It keeps no state between calls.
type Service struct {
	providers []Provider
	timeout   time.Duration
}

func NewService(timeout time.Duration, providers ...Provider) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{providers: providers, timeout: timeout}
}

// Providers returns the names of the configured providers in chain order.
func (s *Service) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate runs the provider chain. A provider that is unavailable or out
// of credit hands over to the next one; a content rejection or a timeout
// ends the call. The first candidate URL of the first successful provider
// wins.
func (s *Service) Generate(ctx context.Context, prompt string, referenceImages []string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if len(s.providers) == 0 {
		return nil, fmt.Errorf("no providers configured: %w", ErrUpstreamUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := zap.L()
	if ic := models.GetInteractionContext(ctx); ic != nil {
		log = log.With(zap.String("interaction_id", ic.InteractionId))
	}

	req := Request{Prompt: prompt, ReferenceImages: referenceImages}
	var lastErr error
	for _, provider := range s.providers {
		started := time.Now()
		urls, err := provider.Generate(ctx, req)
		if err == nil && firstNonEmpty(urls) == "" {
			err = fmt.Errorf("%s returned no image url: %w", provider.Name(), ErrUpstreamUnavailable)
		}
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%s after %v: %w", provider.Name(), s.timeout, ErrTimeout)
		}
		metrics.ObserveProvider(provider.Name(), Kind(err), time.Since(started))

		if err == nil {
			url := firstNonEmpty(urls)
			log.Info("Generation succeeded",
				zap.String("provider", provider.Name()),
				zap.Int("candidates", len(urls)),
				zap.Duration("elapsed", time.Since(started)))
			return &Result{Url: url, Provider: provider.Name(), Candidates: urls}, nil
		}

		log.Warn("Generation provider failed",
			zap.String("provider", provider.Name()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))

		if errors.Is(err, ErrContentRejected) || errors.Is(err, ErrTimeout) {
			return nil, err
		}
		lastErr = err
	}

	if errors.Is(lastErr, ErrInsufficientProviderCredit) || errors.Is(lastErr, ErrUpstreamUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, lastErr)
}

func firstNonEmpty(urls []string) string {
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// Kind names the failure class of err for logs, metrics and user messages.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyPrompt):
		return "empty_prompt"
	case errors.Is(err, ErrInsufficientProviderCredit):
		return "provider_credit"
	case errors.Is(err, ErrContentRejected):
		return "content_rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "upstream_unavailable"
	}
}
