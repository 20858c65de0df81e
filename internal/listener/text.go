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
	"errors"
	"fmt"
	"strings"
	"time"

	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/gateway"
	"stars-imagegen-bot/internal/models"
)

const (
	textWelcome = "Hi! Send me a prompt and I will generate an image for it.\n" +
		"Send a photo with a caption to edit or restyle it.\n\n" +
		"Your balance: %d credits. One image costs %d.\n" +
		"Use /buy to top up with Telegram Stars and /help for the command list."

	textHelp = "Commands:\n" +
		"/balance - your balance and usage\n" +
		"/history - recent balance changes\n" +
		"/top - most active users\n" +
		"/buy - top up with Telegram Stars\n\n" +
		"Send any text to generate an image, or a photo with a caption to use it as a reference."

	textUnknownCommand     = "Unknown command. Send /help for the list of commands."
	textEmptyPrompt        = "The prompt is empty. Describe the image you want."
	textPhotoNeedsCaption  = "Add a caption to the photo describing what to do with it."
	textGenerating         = "Generating your image, this can take up to a minute..."
	textStorageUnavailable = "Something went wrong on our side. Please try again in a moment."
	textRefundFailed       = "Generation failed and we could not return your credit automatically. " +
		"The operator has been notified and will fix your balance."
	textInsufficientBalance = "Not enough credits: you have %d, one image costs %d.\nUse /buy to top up."
	textDone                = "Done! Balance: %d credits."
	textDoneLink            = "Done! Here is your image: %s\nBalance: %d credits."
	textRefunded            = "\nYour credit has been returned. Balance: %d credits."
	textNoHistory           = "No balance changes yet."
	textNoLeaderboard       = "No generations yet."
	textBuyIntro            = "Choose a package. Payment is in Telegram Stars."
	textPaymentInvalid      = "This invoice is no longer valid. Use /buy to get a new one."
	textPaymentCredited     = "Payment received: +%d credits. Balance: %d credits. Thank you!"
	textPaymentDuplicate    = "This payment was already credited. Balance: %d credits."
	textPaymentFailed       = "Your payment was confirmed but we could not update your balance. " +
		"It will be credited once the issue is fixed; please contact the operator if it is not."
)

// failureText maps a gateway failure to the message shown to the user.
// Raw provider errors are never shown.
func failureText(err error) string {
	switch {
	case errors.Is(err, gateway.ErrContentRejected):
		return "The request was rejected by content moderation. Try rewording the prompt."
	case errors.Is(err, gateway.ErrInsufficientProviderCredit):
		return "The image service is temporarily out of capacity. Please try again later."
	case errors.Is(err, gateway.ErrTimeout):
		return "The image took too long to generate. Please try again."
	default:
		return "The image service is unavailable right now. Please try again in a few minutes."
	}
}

func balanceText(overview *models.AccountOverview) string {
	return common.FormatAccount(overview)
}

func historyText(records []models.TransactionRecord) string {
	if len(records) == 0 {
		return textNoHistory
	}
	var b strings.Builder
	b.WriteString("Recent balance changes:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%s  %s %s → %d\n",
			r.CreatedAt.UTC().Format(time.DateTime), kindLabel(r.Kind), common.FormatAmount(r.Amount), r.BalanceAfter)
	}
	return strings.TrimRight(b.String(), "\n")
}

func kindLabel(kind models.EntryKind) string {
	switch kind {
	case models.KindCreditPurchase:
		return "purchase"
	case models.KindDebitSpend:
		return "image"
	case models.KindCreditRefund:
		return "refund"
	case models.KindCreditGrant:
		return "bonus"
	default:
		return string(kind)
	}
}

func leaderboardText(usage []models.AccountUsage) string {
	if len(usage) == 0 {
		return textNoLeaderboard
	}
	var b strings.Builder
	b.WriteString("Top users:\n")
	for i, u := range usage {
		name := u.Username
		if name == "" {
			name = fmt.Sprintf("id%d", u.AccountId)
		} else {
			name = "@" + name
		}
		fmt.Fprintf(&b, "%d. %s - %d images\n", i+1, name, u.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func packageLabel(pkg models.TopUpPackage) string {
	return fmt.Sprintf("%s: %d credits for %d ⭐ (%s ⭐ each)",
		pkg.Title, pkg.Credits, pkg.Stars, common.StarsPerCredit(pkg).StringFixed(1))
}
