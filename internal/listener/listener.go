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

package listener

import (
	"context"
	"sync"
	"time"

	"stars-imagegen-bot/internal/api"
	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/metrics"
	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	defaultDedupWindow     = 10 * time.Minute
	defaultCleanupInterval = time.Minute
	defaultMaxReferences   = 4
)

// BotAPI is the subset of the Telegram client the listener uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// ListenerConfig contains configuration for Listener
type ListenerConfig struct {
	Bot             BotAPI
	Ledger          *api.LedgerService
	Generation      *api.GenerationService
	Catalog         *common.Catalog
	Notifier        notify.Notifier
	MaxReferences   int
	DedupWindow     time.Duration
	CleanupInterval time.Duration
}

// Listener receives Telegram updates and turns them into ledger and
// generation calls. Each update is handled in its own goroutine.
type Listener struct {
	bot           BotAPI
	ledger        *api.LedgerService
	generation    *api.GenerationService
	catalog       *common.Catalog
	notifier      notify.Notifier
	maxReferences int

	// State management for processed updates
	processedUpdates map[int]time.Time
	mutex            sync.RWMutex
	dedupWindow      time.Duration
	cleanupInterval  time.Duration
	now              func() time.Time

	handlers sync.WaitGroup

	// Control channels
	lifecycle sync.Mutex
	stopped   bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewListener creates a new update listener
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = defaultMaxReferences
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	return &Listener{
		bot:              cfg.Bot,
		ledger:           cfg.Ledger,
		generation:       cfg.Generation,
		catalog:          cfg.Catalog,
		notifier:         cfg.Notifier,
		maxReferences:    cfg.MaxReferences,
		processedUpdates: make(map[int]time.Time),
		dedupWindow:      cfg.DedupWindow,
		cleanupInterval:  cfg.CleanupInterval,
		now:              time.Now,
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
	}
}

// Start consumes updates until Stop is called or ctx is done. A nil channel
// is valid in webhook mode, where updates arrive through Dispatch.
func (l *Listener) Start(ctx context.Context, updates <-chan tgbotapi.Update) {
	zap.L().Info("Starting update listener",
		zap.Duration("dedup_window", l.dedupWindow),
		zap.Int("max_references", l.maxReferences))

	go l.cleanupLoop(ctx)
	go l.receiveLoop(ctx, updates)
}

// Stop stops receiving and waits for in-flight handlers to finish
func (l *Listener) Stop() {
	zap.L().Info("Stopping update listener")
	l.closeIntake()
	<-l.doneChan
	zap.L().Info("Update listener stopped")
}

// closeIntake rejects further Dispatch calls. Every handlers.Add happens
// under lifecycle before this returns, so a later handlers.Wait is safe.
func (l *Listener) closeIntake() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.stopChan)
	}
}

func (l *Listener) receiveLoop(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer close(l.doneChan)
	defer l.handlers.Wait()
	defer l.closeIntake()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			l.Dispatch(ctx, update)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch hands one update to its own goroutine. Redelivered updates are
// skipped. It reports whether the update was accepted.
func (l *Listener) Dispatch(ctx context.Context, update tgbotapi.Update) bool {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	if l.stopped {
		zap.L().Warn("Listener stopped, dropping update", zap.Int("update_id", update.UpdateID))
		return false
	}

	if !l.markUpdateProcessed(update.UpdateID) {
		metrics.UpdatesDuplicated.Inc()
		zap.L().Debug("Skipping redelivered update", zap.Int("update_id", update.UpdateID))
		return false
	}

	l.handlers.Add(1)
	go func() {
		defer l.handlers.Done()
		l.HandleUpdate(ctx, update)
	}()
	return true
}

// Wait blocks until every dispatched update has been handled.
func (l *Listener) Wait() {
	l.handlers.Wait()
}

// HandleUpdate routes a single update synchronously
func (l *Listener) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Update handler panicked",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r))
		}
	}()

	switch {
	case update.PreCheckoutQuery != nil:
		metrics.UpdatesReceived.WithLabelValues("pre_checkout").Inc()
		l.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil {
			return
		}
		ctx = models.WithInteractionContext(ctx, &models.InteractionContext{
			AccountId: msg.From.ID,
			ChatId:    msg.Chat.ID,
			UpdateId:  update.UpdateID,
		})
		l.handleMessage(ctx, msg)
	default:
		metrics.UpdatesReceived.WithLabelValues("other").Inc()
	}
}

// markUpdateProcessed records an update id and reports whether it was new
func (l *Listener) markUpdateProcessed(updateId int) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.processedUpdates[updateId]; exists {
		return false
	}
	l.processedUpdates[updateId] = l.now()
	return true
}

// isUpdateProcessed checks if we've already seen this update
func (l *Listener) isUpdateProcessed(updateId int) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	_, exists := l.processedUpdates[updateId]
	return exists
}

// cleanupLoop periodically forgets old update ids
func (l *Listener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupProcessedUpdates()
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedUpdates removes entries older than the dedup window
func (l *Listener) cleanupProcessedUpdates() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := l.now().Add(-l.dedupWindow)
	cleaned := 0

	for updateId, seenAt := range l.processedUpdates {
		if seenAt.Before(cutoff) {
			delete(l.processedUpdates, updateId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed updates",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(l.processedUpdates)))
	}
}

func (l *Listener) reply(ctx context.Context, chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := l.bot.Send(msg); err != nil {
		fields := []zap.Field{zap.Int64("chat_id", chatId), zap.Error(err)}
		if ic := models.GetInteractionContext(ctx); ic != nil {
			fields = append(fields, zap.Int("update_id", ic.UpdateId))
		}
		zap.L().Error("Failed to send message", fields...)
	}
}
