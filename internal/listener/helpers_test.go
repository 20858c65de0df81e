package listener

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"stars-imagegen-bot/internal/api"
	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/database"
	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	fileURLs map[string]string
	// failPhotos makes every photo send fail, like an unreachable result URL
	failPhotos bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := c.(tgbotapi.PhotoConfig); ok && b.failPhotos {
		return tgbotapi.Message{}, errors.New("Bad Request: wrong file identifier/HTTP URL specified")
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	url, ok := b.fileURLs[fileID]
	if !ok {
		return "", errors.New("Bad Request: invalid file_id")
	}
	return url, nil
}

// texts returns the text of every message and the caption of every photo sent.
func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.PhotoConfig:
			out = append(out, m.Caption)
		}
	}
	return out
}

func (b *fakeBot) lastText() string {
	texts := b.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (b *fakeBot) photos() []tgbotapi.PhotoConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range b.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

func (b *fakeBot) invoices() []tgbotapi.InvoiceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.InvoiceConfig
	for _, c := range b.sent {
		if inv, ok := c.(tgbotapi.InvoiceConfig); ok {
			out = append(out, inv)
		}
	}
	return out
}

func (b *fakeBot) preCheckoutAnswers() []tgbotapi.PreCheckoutConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.PreCheckoutConfig
	for _, c := range b.requests {
		if answer, ok := c.(tgbotapi.PreCheckoutConfig); ok {
			out = append(out, answer)
		}
	}
	return out
}

type fakeGenerator struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
	refs  [][]string
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, refs []string) (*gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.refs = append(f.refs, refs)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Result{Url: f.url, Provider: "fake", Candidates: []string{f.url}}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) ofKind(kind notify.EventKind) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	listener  *Listener
	bot       *fakeBot
	generator *fakeGenerator
	notifier  *recordingNotifier
	ledger    *api.LedgerService
	db        *database.Service
}

func setupListener(t *testing.T) *testEnv {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "listener.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	}
	db, err := database.NewService(context.Background(), cfg, database.WithStartingBalance(3))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(db.Close)

	bot := &fakeBot{fileURLs: map[string]string{}}
	generator := &fakeGenerator{url: "https://cdn.example.com/out.png"}
	generation := api.NewGenerationService(db, generator, nil, 1)
	ledger := api.NewLedgerService(db).WithInFlight(generation)

	notifier := &recordingNotifier{}
	l := NewListener(ListenerConfig{
		Bot:        bot,
		Ledger:     ledger,
		Generation: generation,
		Catalog:    common.NewCatalog(common.DefaultPackages),
		Notifier:   notifier,
	})

	return &testEnv{listener: l, bot: bot, generator: generator, notifier: notifier, ledger: ledger, db: db}
}

const (
	testAccount  int64 = 4242
	testUsername       = "alice"
)

func messageUpdate(updateId int, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: updateId,
		From:      &tgbotapi.User{ID: testAccount, UserName: testUsername},
		Chat:      &tgbotapi.Chat{ID: testAccount},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return tgbotapi.Update{UpdateID: updateId, Message: msg}
}

func photoUpdate(updateId int, caption string, fileIds ...string) tgbotapi.Update {
	sizes := make([]tgbotapi.PhotoSize, len(fileIds))
	for i, id := range fileIds {
		sizes[i] = tgbotapi.PhotoSize{FileID: id, Width: 100 * (i + 1), Height: 100 * (i + 1)}
	}
	update := messageUpdate(updateId, "")
	update.Message.Photo = sizes
	update.Message.Caption = caption
	return update
}

func paymentUpdate(updateId int, payload, chargeId string, amount int) tgbotapi.Update {
	update := messageUpdate(updateId, "")
	update.Message.SuccessfulPayment = &tgbotapi.SuccessfulPayment{
		Currency:                starsCurrency,
		TotalAmount:             amount,
		InvoicePayload:          payload,
		TelegramPaymentChargeID: chargeId,
	}
	return update
}

func balanceOf(t *testing.T, env *testEnv) int64 {
	t.Helper()
	balance, err := env.ledger.Balance(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return balance
}
