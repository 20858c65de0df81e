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
	"fmt"

	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/models"
	"stars-imagegen-bot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// starsCurrency is the Telegram Stars currency code; Stars invoices carry no
// provider token.
const starsCurrency = "XTR"

func (l *Listener) sendInvoices(ctx context.Context, chatId int64) {
	l.reply(ctx, chatId, textBuyIntro)

	for _, pkg := range l.catalog.All() {
		invoice := tgbotapi.InvoiceConfig{
			BaseChat: tgbotapi.BaseChat{
				ChatID: chatId,
			},
			Title:         pkg.Title,
			Description:   packageLabel(pkg),
			Payload:       common.Payload(pkg),
			ProviderToken: "",
			Currency:      starsCurrency,
			Prices: []tgbotapi.LabeledPrice{
				{Label: pkg.Title, Amount: pkg.Stars},
			},
			SuggestedTipAmounts: []int{},
		}
		if _, err := l.bot.Send(invoice); err != nil {
			zap.L().Error("Failed to send invoice",
				zap.Int64("chat_id", chatId),
				zap.String("package", pkg.Id),
				zap.Error(err))
			l.reply(ctx, chatId, textStorageUnavailable)
			return
		}
	}
}

// handlePreCheckout approves a checkout only for a known package at its
// current price.
func (l *Listener) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}

	if reason := l.validateCheckout(query.InvoicePayload, query.Currency, query.TotalAmount); reason != "" {
		var accountId int64
		if query.From != nil {
			accountId = query.From.ID
		}
		zap.L().Warn("Rejecting pre-checkout query",
			zap.Int64("account_id", accountId),
			zap.String("invoice_payload", query.InvoicePayload),
			zap.Int("total_amount", query.TotalAmount),
			zap.String("reason", reason))
		answer.OK = false
		answer.ErrorMessage = textPaymentInvalid
	}

	if _, err := l.bot.Request(answer); err != nil {
		zap.L().Error("Failed to answer pre-checkout query",
			zap.String("query_id", query.ID),
			zap.Error(err))
	}
}

func (l *Listener) validateCheckout(payload, currency string, amount int) string {
	pkg, ok := l.catalog.Resolve(payload)
	switch {
	case !ok:
		return "unknown package"
	case currency != starsCurrency:
		return fmt.Sprintf("unexpected currency %s", currency)
	case amount != pkg.Stars:
		return fmt.Sprintf("amount %d does not match package price %d", amount, pkg.Stars)
	}
	return ""
}

// handleSuccessfulPayment credits the package once per Telegram charge id.
// Telegram has already taken the Stars at this point, so a payload that no
// longer resolves is logged for the operator rather than rejected.
func (l *Listener) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	payment := msg.SuccessfulPayment
	log := zap.L().With(
		zap.Int64("account_id", msg.From.ID),
		zap.String("payment_ref", payment.TelegramPaymentChargeID),
		zap.String("invoice_payload", payment.InvoicePayload),
		zap.Int("total_amount", payment.TotalAmount))

	log.Info("Successful payment received")

	pkg, ok := l.catalog.Resolve(payment.InvoicePayload)
	if !ok {
		log.Error("Payment for unknown package")
		l.notifier.Notify(ctx, notify.PaymentFailedEvent(msg.From.ID, msg.From.UserName,
			payment.TelegramPaymentChargeID, 0, "unknown package "+payment.InvoicePayload))
		l.reply(ctx, msg.Chat.ID, textPaymentFailed)
		return
	}

	result, err := l.ledger.TopUp(ctx, models.PaymentConfirmation{
		AccountId:  msg.From.ID,
		Username:   msg.From.UserName,
		PaymentRef: payment.TelegramPaymentChargeID,
		Credits:    pkg.Credits,
	})
	if err != nil || !result.Success {
		log.Error("Payment could not be credited", zap.Error(err))
		reason := "ledger unavailable"
		if err == nil {
			reason = result.Error
		}
		l.notifier.Notify(ctx, notify.PaymentFailedEvent(msg.From.ID, msg.From.UserName,
			payment.TelegramPaymentChargeID, pkg.Credits, reason))
		l.reply(ctx, msg.Chat.ID, textPaymentFailed)
		return
	}

	if result.Duplicate {
		l.reply(ctx, msg.Chat.ID, fmt.Sprintf(textPaymentDuplicate, result.NewBalance))
		return
	}
	l.reply(ctx, msg.Chat.ID, fmt.Sprintf(textPaymentCredited, result.Credited, result.NewBalance))
}
