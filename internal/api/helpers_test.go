package api

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stars-imagegen-bot/internal/database"
	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"
)

func setupTestStore(t *testing.T) (*database.Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	}
	db, err := database.NewService(context.Background(), cfg, database.WithStartingBalance(3))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return db, db.Close
}

type fakeGenerator struct {
	mu     sync.Mutex
	url    string
	err    error
	calls  int
	before func()
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, refs []string) (*gateway.Result, error) {
	f.mu.Lock()
	f.calls++
	before := f.before
	f.mu.Unlock()
	if before != nil {
		before()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Result{Url: f.url, Provider: "fake", Candidates: []string{f.url}}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) kinds() []notify.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notify.EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}
