package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/notify"
	"stars-imagegen-bot/internal/store"

	"github.com/google/go-cmp/cmp"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestPrompt_SendsImageAndDebits(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()

	env.listener.HandleUpdate(ctx, messageUpdate(1, "a red fox in the snow"))

	photos := env.bot.photos()
	if len(photos) != 1 {
		t.Fatalf("Expected 1 photo, got %d", len(photos))
	}
	if got := photos[0].File; got != tgbotapi.FileURL("https://cdn.example.com/out.png") {
		t.Errorf("Unexpected photo file: %v", got)
	}
	if photos[0].Caption != fmt.Sprintf(textDone, 2) {
		t.Errorf("Unexpected caption: %q", photos[0].Caption)
	}
	if got := balanceOf(t, env); got != 2 {
		t.Errorf("Expected balance 2, got %d", got)
	}
}

func TestPrompt_PhotoFailureFallsBackToLink(t *testing.T) {
	env := setupListener(t)
	env.bot.failPhotos = true

	env.listener.HandleUpdate(context.Background(), messageUpdate(1, "lighthouse at dusk"))

	want := fmt.Sprintf(textDoneLink, "https://cdn.example.com/out.png", 2)
	if got := env.bot.lastText(); got != want {
		t.Errorf("Expected link fallback %q, got %q", want, got)
	}
}

func TestPrompt_DrainThenInsufficient(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		env.listener.HandleUpdate(ctx, messageUpdate(i, "prompt"))
	}
	env.listener.HandleUpdate(ctx, messageUpdate(4, "one more"))

	if got := env.generator.callCount(); got != 3 {
		t.Errorf("Expected 3 gateway calls, got %d", got)
	}
	want := fmt.Sprintf(textInsufficientBalance, 0, 1)
	if got := env.bot.lastText(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if got := balanceOf(t, env); got != 0 {
		t.Errorf("Expected balance 0, got %d", got)
	}

	generating := 0
	for _, text := range env.bot.texts() {
		if text == textGenerating {
			generating++
		}
	}
	if generating != 3 {
		t.Errorf("Expected a progress message only for the 3 charged prompts, got %d", generating)
	}
}

func TestPrompt_FailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"content rejected", fmt.Errorf("replicate: %w: nsfw", gateway.ErrContentRejected), "rewording"},
		{"provider credit", fmt.Errorf("replicate: %w", gateway.ErrInsufficientProviderCredit), "out of capacity"},
		{"timeout", fmt.Errorf("render: %w", gateway.ErrTimeout), "too long"},
		{"upstream", fmt.Errorf("render: %w: 502", gateway.ErrUpstreamUnavailable), "unavailable right now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupListener(t)
			env.generator.err = tt.err

			env.listener.HandleUpdate(context.Background(), messageUpdate(1, "a castle"))

			got := env.bot.lastText()
			if !strings.Contains(got, tt.want) {
				t.Errorf("Expected message containing %q, got %q", tt.want, got)
			}
			if !strings.Contains(got, fmt.Sprintf(textRefunded, 3)) {
				t.Errorf("Expected refund notice with balance 3, got %q", got)
			}
			if strings.Contains(got, "nsfw") || strings.Contains(got, "502") {
				t.Errorf("Raw provider error leaked to user: %q", got)
			}
			if balance := balanceOf(t, env); balance != 3 {
				t.Errorf("Expected balance restored to 3, got %d", balance)
			}
		})
	}
}

func TestPrompt_WhitespaceIsRejected(t *testing.T) {
	env := setupListener(t)

	env.listener.HandleUpdate(context.Background(), messageUpdate(1, "   "))

	if got := env.bot.lastText(); got != textEmptyPrompt {
		t.Errorf("Expected empty prompt message, got %q", got)
	}
	if env.generator.callCount() != 0 {
		t.Errorf("Gateway must not be called for an empty prompt")
	}
}

func TestPhoto_UsesLargestSizeAndReply(t *testing.T) {
	env := setupListener(t)
	env.bot.fileURLs = map[string]string{
		"small":    "https://files.example.com/small.jpg",
		"large":    "https://files.example.com/large.jpg",
		"original": "https://files.example.com/original.jpg",
	}

	update := photoUpdate(1, "make it watercolor", "small", "large")
	update.Message.ReplyToMessage = &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{{FileID: "original"}},
	}
	env.listener.HandleUpdate(context.Background(), update)

	want := [][]string{{"https://files.example.com/large.jpg", "https://files.example.com/original.jpg"}}
	if diff := cmp.Diff(want, env.generator.refs); diff != "" {
		t.Errorf("Reference images mismatch (-want +got):\n%s", diff)
	}
}

func TestPhoto_RespectsReferenceLimit(t *testing.T) {
	env := setupListener(t)
	env.listener.maxReferences = 1
	env.bot.fileURLs = map[string]string{"a": "https://files.example.com/a.jpg", "b": "https://files.example.com/b.jpg"}

	update := photoUpdate(1, "combine", "a")
	update.Message.ReplyToMessage = &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "b"}}}
	env.listener.HandleUpdate(context.Background(), update)

	want := [][]string{{"https://files.example.com/a.jpg"}}
	if diff := cmp.Diff(want, env.generator.refs); diff != "" {
		t.Errorf("Reference images mismatch (-want +got):\n%s", diff)
	}
}

func TestPhoto_WithoutCaption(t *testing.T) {
	env := setupListener(t)
	env.bot.fileURLs = map[string]string{"a": "https://files.example.com/a.jpg"}

	env.listener.HandleUpdate(context.Background(), photoUpdate(1, "", "a"))

	if got := env.bot.lastText(); got != textPhotoNeedsCaption {
		t.Errorf("Expected caption hint, got %q", got)
	}
	if env.generator.callCount() != 0 {
		t.Errorf("Gateway must not be called without a caption")
	}
}

func TestPhoto_UnresolvableFileIsNotCharged(t *testing.T) {
	env := setupListener(t)

	env.listener.HandleUpdate(context.Background(), photoUpdate(1, "restyle", "missing"))

	if env.generator.callCount() != 0 {
		t.Errorf("Gateway must not be called when the photo cannot be fetched")
	}
	// the photo is rejected before the account is opened
	if _, err := env.db.GetAccount(context.Background(), testAccount); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Expected no account to be opened, got %v", err)
	}
}

func TestPhoto_UnresolvableFileLeavesBalance(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()

	env.listener.HandleUpdate(ctx, messageUpdate(1, "/start"))
	env.listener.HandleUpdate(ctx, photoUpdate(2, "restyle", "missing"))

	if env.generator.callCount() != 0 {
		t.Errorf("Gateway must not be called when the photo cannot be fetched")
	}
	if got := balanceOf(t, env); got != 3 {
		t.Errorf("Expected untouched balance 3, got %d", got)
	}
}

func TestCommands(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()

	env.listener.HandleUpdate(ctx, messageUpdate(1, "/start"))
	if got, want := env.bot.lastText(), fmt.Sprintf(textWelcome, 3, 1); got != want {
		t.Errorf("Unexpected /start reply: %q", got)
	}

	env.listener.HandleUpdate(ctx, messageUpdate(2, "a lighthouse"))

	env.listener.HandleUpdate(ctx, messageUpdate(3, "/balance"))
	if got := env.bot.lastText(); !strings.Contains(got, "Balance: 2 credits") || !strings.Contains(got, "Total generations: 1") {
		t.Errorf("Unexpected /balance reply: %q", got)
	}

	env.listener.HandleUpdate(ctx, messageUpdate(4, "/history 5"))
	history := env.bot.lastText()
	if !strings.Contains(history, "image -1 → 2") || !strings.Contains(history, "bonus +3 → 3") {
		t.Errorf("Unexpected /history reply: %q", history)
	}

	env.listener.HandleUpdate(ctx, messageUpdate(5, "/top"))
	if got := env.bot.lastText(); got != "Top users:\n1. @alice - 1 images" {
		t.Errorf("Unexpected /top reply: %q", got)
	}

	env.listener.HandleUpdate(ctx, messageUpdate(6, "/help"))
	if got := env.bot.lastText(); got != textHelp {
		t.Errorf("Unexpected /help reply: %q", got)
	}

	env.listener.HandleUpdate(ctx, messageUpdate(7, "/frobnicate"))
	if got := env.bot.lastText(); got != textUnknownCommand {
		t.Errorf("Unexpected reply to unknown command: %q", got)
	}

	if env.generator.callCount() != 1 {
		t.Errorf("Commands must not reach the gateway")
	}
}

func TestBuy_SendsStarsInvoices(t *testing.T) {
	env := setupListener(t)

	env.listener.HandleUpdate(context.Background(), messageUpdate(1, "/buy"))

	invoices := env.bot.invoices()
	if len(invoices) != len(common.DefaultPackages) {
		t.Fatalf("Expected %d invoices, got %d", len(common.DefaultPackages), len(invoices))
	}
	for i, inv := range invoices {
		pkg := common.DefaultPackages[i]
		if inv.Currency != "XTR" || inv.Payload != common.Payload(pkg) {
			t.Errorf("Unexpected invoice %d: currency=%s payload=%s", i, inv.Currency, inv.Payload)
		}
		if len(inv.Prices) != 1 || inv.Prices[0].Amount != pkg.Stars {
			t.Errorf("Unexpected prices for %s: %+v", pkg.Id, inv.Prices)
		}
	}
}

func TestPreCheckout(t *testing.T) {
	small := common.DefaultPackages[0]
	tests := []struct {
		name     string
		payload  string
		currency string
		amount   int
		wantOK   bool
	}{
		{"known package", common.Payload(small), "XTR", small.Stars, true},
		{"wrong amount", common.Payload(small), "XTR", small.Stars - 1, false},
		{"wrong currency", common.Payload(small), "USD", small.Stars, false},
		{"unknown package", "topup:gold", "XTR", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupListener(t)
			env.listener.HandleUpdate(context.Background(), tgbotapi.Update{
				UpdateID: 1,
				PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
					ID:             "q1",
					From:           &tgbotapi.User{ID: testAccount},
					Currency:       tt.currency,
					TotalAmount:    tt.amount,
					InvoicePayload: tt.payload,
				},
			})

			answers := env.bot.preCheckoutAnswers()
			if len(answers) != 1 {
				t.Fatalf("Expected 1 answer, got %d", len(answers))
			}
			if answers[0].OK != tt.wantOK {
				t.Errorf("Expected OK=%v, got %v", tt.wantOK, answers[0].OK)
			}
			if !tt.wantOK && answers[0].ErrorMessage == "" {
				t.Errorf("Rejected checkout must carry an error message")
			}
		})
	}
}

func TestSuccessfulPayment_CreditsOnce(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()
	small := common.DefaultPackages[0]

	env.listener.HandleUpdate(ctx, paymentUpdate(1, common.Payload(small), "pay_123", small.Stars))
	if got, want := env.bot.lastText(), fmt.Sprintf(textPaymentCredited, small.Credits, 3+small.Credits); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	// Telegram retries the same charge under a new update id
	env.listener.HandleUpdate(ctx, paymentUpdate(2, common.Payload(small), "pay_123", small.Stars))
	if got, want := env.bot.lastText(), fmt.Sprintf(textPaymentDuplicate, 3+small.Credits); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if got := balanceOf(t, env); got != 3+small.Credits {
		t.Errorf("Expected balance %d, got %d", 3+small.Credits, got)
	}
}

func TestSuccessfulPayment_UnknownPackage(t *testing.T) {
	env := setupListener(t)

	env.listener.HandleUpdate(context.Background(), paymentUpdate(1, "topup:retired", "pay_9", 99))

	if got := env.bot.lastText(); got != textPaymentFailed {
		t.Errorf("Expected failure message, got %q", got)
	}
	alerts := env.notifier.ofKind(notify.EventPayment)
	if len(alerts) != 1 || !strings.Contains(alerts[0].Text, "pay_9") || !strings.Contains(alerts[0].Text, "topup:retired") {
		t.Errorf("Expected one payment alert naming the charge, got %+v", alerts)
	}
}

func TestSuccessfulPayment_LedgerFailureAlertsOperator(t *testing.T) {
	env := setupListener(t)
	small := common.DefaultPackages[0]
	env.db.Close()

	env.listener.HandleUpdate(context.Background(), paymentUpdate(1, common.Payload(small), "pay_fail", small.Stars))

	if got := env.bot.lastText(); got != textPaymentFailed {
		t.Errorf("Expected failure message, got %q", got)
	}
	alerts := env.notifier.ofKind(notify.EventPayment)
	if len(alerts) != 1 {
		t.Fatalf("Expected one payment alert, got %d", len(alerts))
	}
	if want := "ledgerctl credit 4242 10 --ref pay_fail"; !strings.Contains(alerts[0].Text, want) {
		t.Errorf("Alert should carry the manual fix %q, got %q", want, alerts[0].Text)
	}
}

func TestSuccessfulPayment_CreditedPaymentIsNotAlerted(t *testing.T) {
	env := setupListener(t)
	small := common.DefaultPackages[0]

	env.listener.HandleUpdate(context.Background(), paymentUpdate(1, common.Payload(small), "pay_ok", small.Stars))

	if alerts := env.notifier.ofKind(notify.EventPayment); len(alerts) != 0 {
		t.Errorf("Expected no payment alerts, got %+v", alerts)
	}
}

func TestDispatch_SkipsRedeliveredUpdates(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()

	if !env.listener.Dispatch(ctx, messageUpdate(7, "a harbor")) {
		t.Fatal("First delivery should be accepted")
	}
	if env.listener.Dispatch(ctx, messageUpdate(7, "a harbor")) {
		t.Error("Redelivery should be skipped")
	}
	env.listener.Wait()

	if got := env.generator.callCount(); got != 1 {
		t.Errorf("Expected 1 generation, got %d", got)
	}
	if got := balanceOf(t, env); got != 2 {
		t.Errorf("Expected balance 2, got %d", got)
	}
}

func TestDispatch_AfterStopIsRejected(t *testing.T) {
	env := setupListener(t)
	ctx := context.Background()

	env.listener.Start(ctx, nil)
	env.listener.Stop()

	if env.listener.Dispatch(ctx, messageUpdate(9, "late")) {
		t.Error("Dispatch after Stop should be rejected")
	}
	env.listener.Wait()

	if got := env.generator.callCount(); got != 0 {
		t.Errorf("Expected no generation after Stop, got %d", got)
	}
}

func TestCleanupProcessedUpdates(t *testing.T) {
	env := setupListener(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.listener.now = func() time.Time { return now }

	env.listener.markUpdateProcessed(1)
	now = now.Add(env.listener.dedupWindow / 2)
	env.listener.markUpdateProcessed(2)
	now = now.Add(env.listener.dedupWindow/2 + time.Second)

	env.listener.cleanupProcessedUpdates()

	if env.listener.isUpdateProcessed(1) {
		t.Error("Update 1 should have been forgotten")
	}
	if !env.listener.isUpdateProcessed(2) {
		t.Error("Update 2 is still inside the window")
	}
}

func TestStart_ClosedChannelDrainsHandlers(t *testing.T) {
	env := setupListener(t)
	updates := make(chan tgbotapi.Update, 2)
	updates <- messageUpdate(1, "first")
	updates <- messageUpdate(2, "second")
	close(updates)

	env.listener.Start(context.Background(), updates)
	<-env.listener.doneChan
	env.listener.Stop()

	if got := env.generator.callCount(); got != 2 {
		t.Errorf("Expected 2 generations, got %d", got)
	}
}
