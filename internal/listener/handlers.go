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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stars-imagegen-bot/internal/api"
	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/metrics"
	"stars-imagegen-bot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const leaderboardSize = 10

func (l *Listener) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch {
	case msg.SuccessfulPayment != nil:
		metrics.UpdatesReceived.WithLabelValues("payment").Inc()
		l.handleSuccessfulPayment(ctx, msg)
	case msg.IsCommand():
		metrics.UpdatesReceived.WithLabelValues("command").Inc()
		l.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		metrics.UpdatesReceived.WithLabelValues("photo").Inc()
		l.handlePhoto(ctx, msg)
	case msg.Text != "":
		metrics.UpdatesReceived.WithLabelValues("prompt").Inc()
		l.handlePrompt(ctx, chatEvent(msg, msg.Text))
	default:
		metrics.UpdatesReceived.WithLabelValues("other").Inc()
		l.reply(ctx, msg.Chat.ID, textHelp)
	}
}

func (l *Listener) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatId := msg.Chat.ID
	accountId := msg.From.ID

	switch msg.Command() {
	case "start":
		overview, err := l.ledger.Overview(ctx, accountId, msg.From.UserName)
		if err != nil {
			l.reply(ctx, chatId, textStorageUnavailable)
			return
		}
		l.reply(ctx, chatId, fmt.Sprintf(textWelcome, overview.Account.Balance, l.generation.Cost()))
	case "help":
		l.reply(ctx, chatId, textHelp)
	case "balance":
		overview, err := l.ledger.Overview(ctx, accountId, msg.From.UserName)
		if err != nil {
			l.reply(ctx, chatId, textStorageUnavailable)
			return
		}
		l.reply(ctx, chatId, balanceText(overview))
	case "history":
		limit, _ := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
		records, err := l.ledger.History(ctx, accountId, limit, 0)
		if err != nil {
			l.reply(ctx, chatId, textStorageUnavailable)
			return
		}
		l.reply(ctx, chatId, historyText(records))
	case "top":
		usage, err := l.ledger.Leaderboard(ctx, leaderboardSize)
		if err != nil {
			l.reply(ctx, chatId, textStorageUnavailable)
			return
		}
		l.reply(ctx, chatId, leaderboardText(usage))
	case "buy":
		l.sendInvoices(ctx, chatId)
	default:
		l.reply(ctx, chatId, textUnknownCommand)
	}
}

// handlePhoto uses the largest size of the photo, plus the photo being
// replied to, as reference images for the caption prompt.
func (l *Listener) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	if strings.TrimSpace(msg.Caption) == "" {
		l.reply(ctx, msg.Chat.ID, textPhotoNeedsCaption)
		return
	}

	photos := [][]tgbotapi.PhotoSize{msg.Photo}
	if msg.ReplyToMessage != nil && len(msg.ReplyToMessage.Photo) > 0 {
		photos = append(photos, msg.ReplyToMessage.Photo)
	}

	event := chatEvent(msg, msg.Caption)
	for _, sizes := range photos {
		if len(event.ReferenceImages) >= l.maxReferences {
			break
		}
		largest := sizes[len(sizes)-1]
		url, err := l.bot.GetFileDirectURL(largest.FileID)
		if err != nil {
			zap.L().Error("Failed to resolve photo url",
				zap.Int64("account_id", event.AccountId),
				zap.String("file_id", largest.FileID),
				zap.Error(err))
			l.reply(ctx, msg.Chat.ID, failureText(gateway.ErrUpstreamUnavailable))
			return
		}
		event.ReferenceImages = append(event.ReferenceImages, url)
	}

	l.handlePrompt(ctx, event)
}

func (l *Listener) handlePrompt(ctx context.Context, event models.ChatEvent) {
	if strings.TrimSpace(event.Text) == "" {
		l.reply(ctx, event.ChatId, textEmptyPrompt)
		return
	}

	result, err := l.generation.Generate(ctx, api.GenerationRequest{
		AccountId:       event.AccountId,
		Username:        event.Username,
		Prompt:          event.Text,
		ReferenceImages: event.ReferenceImages,
		OnStarted: func() {
			l.reply(ctx, event.ChatId, textGenerating)
			if _, err := l.bot.Request(tgbotapi.NewChatAction(event.ChatId, tgbotapi.ChatUploadPhoto)); err != nil {
				zap.L().Debug("Failed to send chat action", zap.Error(err))
			}
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrEmptyPrompt):
			l.reply(ctx, event.ChatId, textEmptyPrompt)
		case errors.Is(err, api.ErrRefundFailed):
			l.reply(ctx, event.ChatId, textRefundFailed)
		default:
			zap.L().Error("Generation could not start",
				zap.Int64("account_id", event.AccountId),
				zap.Error(err))
			l.reply(ctx, event.ChatId, textStorageUnavailable)
		}
		return
	}

	switch result.Outcome {
	case api.OutcomeInsufficientBalance:
		l.reply(ctx, event.ChatId, fmt.Sprintf(textInsufficientBalance, result.Balance, result.Cost))
	case api.OutcomeFailed:
		l.reply(ctx, event.ChatId, failureText(result.Failure)+fmt.Sprintf(textRefunded, result.Balance))
	case api.OutcomeSucceeded:
		l.sendResult(ctx, event, result)
	}
}

// sendResult relays the image, falling back to a link when Telegram cannot
// fetch the URL itself.
func (l *Listener) sendResult(ctx context.Context, event models.ChatEvent, result *api.GenerationResult) {
	photo := tgbotapi.NewPhoto(event.ChatId, tgbotapi.FileURL(result.ImageUrl))
	photo.Caption = fmt.Sprintf(textDone, result.Balance)
	photo.ReplyToMessageID = event.MessageId
	if _, err := l.bot.Send(photo); err != nil {
		zap.L().Warn("Failed to send photo, sending link",
			zap.String("interaction_id", result.InteractionId),
			zap.Int64("account_id", event.AccountId),
			zap.Error(err))
		l.reply(ctx, event.ChatId, fmt.Sprintf(textDoneLink, result.ImageUrl, result.Balance))
	}
}

func chatEvent(msg *tgbotapi.Message, text string) models.ChatEvent {
	return models.ChatEvent{
		AccountId: msg.From.ID,
		ChatId:    msg.Chat.ID,
		MessageId: msg.MessageID,
		Username:  msg.From.UserName,
		Text:      strings.TrimSpace(text),
	}
}
