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

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ─── Generation ─────────────────────────────────────────────────────────────

// GenerationOutcomes counts finished interactions by outcome.
var GenerationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "generation",
	Name:      "outcomes_total",
	Help:      "Finished generation interactions by outcome.",
}, []string{"outcome"})

// GenerationsInFlight tracks interactions that hold a debit and await the gateway.
var GenerationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "imagebot",
	Subsystem: "generation",
	Name:      "in_flight",
	Help:      "Interactions currently awaiting the generation gateway.",
})

// ProviderRequests counts provider calls by provider and result class.
var ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "gateway",
	Name:      "provider_requests_total",
	Help:      "Generation provider calls by provider and result.",
}, []string{"provider", "result"})

// ProviderLatency tracks provider call duration.
var ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "imagebot",
	Subsystem: "gateway",
	Name:      "provider_latency_seconds",
	Help:      "Generation provider call duration in seconds.",
	Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
}, []string{"provider"})

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerEntries counts applied ledger entries by kind.
var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Applied ledger entries by kind.",
}, []string{"kind"})

// DuplicatePayments counts payment confirmations ignored as already credited.
var DuplicatePayments = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "ledger",
	Name:      "duplicate_payments_total",
	Help:      "Payment confirmations skipped because the payment ref was already credited.",
})

// RefundFailures counts compensating credits that could not be written.
var RefundFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "ledger",
	Name:      "refund_failures_total",
	Help:      "Compensating credits that failed to commit.",
})

// ─── Transport ──────────────────────────────────────────────────────────────

// UpdatesReceived counts Telegram updates by type.
var UpdatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "telegram",
	Name:      "updates_total",
	Help:      "Telegram updates received by type.",
}, []string{"type"})

// UpdatesDuplicated counts redelivered updates skipped by the listener.
var UpdatesDuplicated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "telegram",
	Name:      "updates_duplicated_total",
	Help:      "Redelivered Telegram updates that were skipped.",
})

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationsDropped counts operator notifications dropped because the queue was full.
var NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "notify",
	Name:      "dropped_total",
	Help:      "Operator notifications dropped because the queue was full.",
})

// NotificationsSent counts delivered operator notifications by result.
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "imagebot",
	Subsystem: "notify",
	Name:      "sent_total",
	Help:      "Operator notifications processed by result.",
}, []string{"result"})

// ObserveProvider records one provider call.
func ObserveProvider(provider, result string, elapsed time.Duration) {
	ProviderRequests.WithLabelValues(provider, result).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
