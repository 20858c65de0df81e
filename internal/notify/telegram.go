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
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxMessageLength = 4096
	maxCaptionLength = 1024
)

// Sender is the subset of the Telegram client used to reach the operator.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers events to the operator's private chat.
type Telegram struct {
	sender  Sender
	adminId int64
}

func NewTelegram(sender Sender, adminId int64) *Telegram {
	return &Telegram{sender: sender, adminId: adminId}
}

func (t *Telegram) Deliver(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if LooksLikeImage(event.ImageUrl) {
		photo := tgbotapi.NewPhoto(t.adminId, tgbotapi.FileURL(event.ImageUrl))
		photo.Caption = clip(event.Text, maxCaptionLength)
		if _, err := t.sender.Send(photo); err == nil {
			return nil
		}
		// Telegram could not fetch the image; fall back to a text message with the link.
	}

	text := event.Text
	if event.ImageUrl != "" {
		text += "\n\nResult:\n" + event.ImageUrl
	}

	msg := tgbotapi.NewMessage(t.adminId, clip(text, maxMessageLength))
	msg.DisableWebPagePreview = event.ImageUrl == ""
	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("unable to notify admin %d: %w", t.adminId, err)
	}
	return nil
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
