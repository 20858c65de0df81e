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
	"net"
	"net/http"
	"strings"
)

var contentRejectedMarkers = []string{
	"nsfw",
	"safety",
	"moderation",
	"flagged",
	"content policy",
	"inappropriate",
}

var providerCreditMarkers = []string{
	"insufficient credit",
	"insufficient balance",
	"quota",
	"billing",
	"payment required",
	"out of credit",
}

// classifyResponse maps an unsuccessful provider response onto the failure
// taxonomy using the status code and the body text.
func classifyResponse(provider string, status int, body string) error {
	text := strings.ToLower(body)
	detail := truncate(strings.TrimSpace(body), 200)

	switch {
	case containsAny(text, contentRejectedMarkers):
		return fmt.Errorf("%s status %d (%s): %w", provider, status, detail, ErrContentRejected)
	case status == http.StatusPaymentRequired || containsAny(text, providerCreditMarkers):
		return fmt.Errorf("%s status %d (%s): %w", provider, status, detail, ErrInsufficientProviderCredit)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return fmt.Errorf("%s status %d: %w", provider, status, ErrTimeout)
	default:
		return fmt.Errorf("%s status %d (%s): %w", provider, status, detail, ErrUpstreamUnavailable)
	}
}

// classifyFailureText maps a provider reported failure message (for example
// a prediction error field) onto the failure taxonomy.
func classifyFailureText(provider, message string) error {
	text := strings.ToLower(message)
	detail := truncate(strings.TrimSpace(message), 200)

	switch {
	case containsAny(text, contentRejectedMarkers):
		return fmt.Errorf("%s: %s: %w", provider, detail, ErrContentRejected)
	case containsAny(text, providerCreditMarkers):
		return fmt.Errorf("%s: %s: %w", provider, detail, ErrInsufficientProviderCredit)
	default:
		return fmt.Errorf("%s: %s: %w", provider, detail, ErrUpstreamUnavailable)
	}
}

// classifyTransport maps a transport level error.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", provider, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrUpstreamUnavailable, err)
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
