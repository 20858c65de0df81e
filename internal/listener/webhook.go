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
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"stars-imagegen-bot/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxUpdateBytes = 1 << 20

// HealthChecker reports whether the ledger is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Router serves the ops endpoints and, when a listener is attached, the
// Telegram webhook at POST /telegram/{secret}.
type Router struct {
	listener *Listener
	health   HealthChecker
	secret   string
	ctx      context.Context
}

// NewRouter builds the HTTP surface. Updates accepted by the webhook are
// handled under ctx, not the request context, because Telegram gets its 200
// before generation finishes.
func NewRouter(ctx context.Context, health HealthChecker, listener *Listener, secret string) *Router {
	return &Router{listener: listener, health: health, secret: secret, ctx: ctx}
}

// Handler returns the chi router with all routes mounted.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", rt.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	if rt.listener != nil {
		r.Post("/telegram/{secret}", rt.handleWebhook)
	}

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.health.HealthCheck(ctx); err != nil {
		zap.L().Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleWebhook(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")
	if rt.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(rt.secret)) != 1 {
		http.NotFound(w, r)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		zap.L().Warn("Rejecting malformed webhook update", zap.Error(err))
		http.Error(w, "malformed update", http.StatusBadRequest)
		return
	}

	rt.listener.Dispatch(rt.ctx, update)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}
