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

package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventKind classifies an operator notification.
type EventKind string

const (
	EventGeneration EventKind = "generation"
	EventAlert      EventKind = "alert"
	EventReport     EventKind = "report"
	EventPayment    EventKind = "payment"
)

// Event is one message for the operator. ImageUrl, when it points to an
// image, is delivered as a photo with Text as the caption.
type Event struct {
	Kind     EventKind
	Text     string
	ImageUrl string
}

// Notifier is the fire-and-forget operator channel. Implementations must not
// block the caller on delivery and must swallow delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Deliverer performs the actual, possibly slow, delivery of one event.
type Deliverer interface {
	Deliver(ctx context.Context, event Event) error
}

// Nop discards every event. Used when no operator is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// GenerationEvent describes a finished generation for the operator.
func GenerationEvent(accountId int64, username, prompt string, references int, resultUrl string, at time.Time) Event {
	if username == "" {
		username = "none"
	}
	kind := "text-to-image"
	if references > 0 {
		kind = fmt.Sprintf("image edit (%d reference)", references)
		if references > 1 {
			kind = fmt.Sprintf("image edit (%d references)", references)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 User: @%s (id:%d)\n", username, accountId)
	fmt.Fprintf(&b, "⏱ %s UTC\n", at.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Type: %s\n\n", kind)
	fmt.Fprintf(&b, "Prompt:\n%s", prompt)

	return Event{Kind: EventGeneration, Text: b.String(), ImageUrl: resultUrl}
}

// AlertEvent is an operational problem that needs a human.
func AlertEvent(format string, args ...any) Event {
	return Event{Kind: EventAlert, Text: "⚠️ " + fmt.Sprintf(format, args...)}
}

// PaymentFailedEvent reports a Stars payment that was charged but not
// credited. The charge id doubles as the ref for a manual idempotent credit.
func PaymentFailedEvent(accountId int64, username, chargeId string, credits int64, reason string) Event {
	if username == "" {
		username = "none"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💳 Payment not credited: %s\n", reason)
	fmt.Fprintf(&b, "👤 User: @%s (id:%d)\n", username, accountId)
	fmt.Fprintf(&b, "Charge: %s\n", chargeId)
	if credits > 0 {
		fmt.Fprintf(&b, "Credits: %d\n\n", credits)
		fmt.Fprintf(&b, "Fix: ledgerctl credit %d %d --ref %s", accountId, credits, chargeId)
	}
	return Event{Kind: EventPayment, Text: strings.TrimRight(b.String(), "\n")}
}

// LooksLikeImage reports whether url is an http(s) link to a common image format.
func LooksLikeImage(url string) bool {
	lower := strings.ToLower(url)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp", ".gif"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}
