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
	"sync"
	"time"

	"stars-imagegen-bot/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Async queues events for a small pool of workers so callers never wait on
// the operator channel. Events are dropped when the queue is full.
type Async struct {
	events    chan Event
	deliverer Deliverer
	limiter   *rate.Limiter
	timeout   time.Duration
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewAsync creates the pool. perSecond bounds delivery throughput; zero or
// less disables limiting.
func NewAsync(deliverer Deliverer, queueSize int, perSecond float64) *Async {
	if queueSize <= 0 {
		queueSize = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Async{
		events:    make(chan Event, queueSize),
		deliverer: deliverer,
		limiter:   rate.NewLimiter(limit, 1),
		timeout:   30 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (a *Async) Start(workerCount int) {
	if workerCount <= 0 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

func (a *Async) worker() {
	defer a.wg.Done()

	for event := range a.events {
		if err := a.limiter.Wait(a.ctx); err != nil {
			metrics.NotificationsSent.WithLabelValues("cancelled").Inc()
			continue
		}

		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		err := a.deliverer.Deliver(ctx, event)
		cancel()

		if err != nil {
			metrics.NotificationsSent.WithLabelValues("error").Inc()
			zap.L().Warn("Operator notification failed",
				zap.String("kind", string(event.Kind)),
				zap.Error(err))
			continue
		}
		metrics.NotificationsSent.WithLabelValues("ok").Inc()
	}
}

// Notify enqueues the event without blocking.
func (a *Async) Notify(_ context.Context, event Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.NotificationsDropped.Inc()
		return
	}

	select {
	case a.events <- event:
	default:
		metrics.NotificationsDropped.Inc()
		zap.L().Warn("Operator notification queue full, dropping event",
			zap.String("kind", string(event.Kind)))
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered,
// or abandons them when ctx expires first.
func (a *Async) Shutdown(ctx context.Context) {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.cancel()
		<-done
	}
	a.cancel()
}
