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

package report

import (
	"fmt"
	"strings"
	"time"

	"stars-imagegen-bot/internal/models"

	"github.com/shopspring/decimal"
)

// Zone returns the fixed offset zone the report day is measured in.
func Zone(offsetMinutes int) *time.Location {
	sign := "+"
	abs := offsetMinutes
	if offsetMinutes < 0 {
		sign = "-"
		abs = -offsetMinutes
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", sign, abs/60, abs%60)
	return time.FixedZone(name, offsetMinutes*60)
}

// Window returns the previous full local calendar day before now as a
// half-open UTC range [start, end).
func Window(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DayWindow(today.AddDate(0, 0, -1), loc)
}

// DayWindow returns the local calendar day containing day as a half-open
// UTC range [start, end).
func DayWindow(day time.Time, loc *time.Location) (time.Time, time.Time) {
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// NextRun returns the first hour:minute local time strictly after now.
func NextRun(now time.Time, loc *time.Location, hour, minute int) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RefundRate is the share of spends that were refunded, in percent.
func RefundRate(summary *models.DailySummary) decimal.Decimal {
	if summary.TotalSpendCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(summary.RefundCount).
		Div(decimal.NewFromInt(summary.TotalSpendCount)).
		Mul(decimal.NewFromInt(100))
}

// Format renders a summary for the operator chat.
func Format(summary *models.DailySummary, loc *time.Location) string {
	var b strings.Builder

	day := summary.Start.In(loc).Format("2006-01-02")
	fmt.Fprintf(&b, "📊 Daily report for %s (%s)\n\n", day, loc.String())
	fmt.Fprintf(&b, "Generations: %d\n", summary.TotalSpendCount)
	fmt.Fprintf(&b, "Unique users: %d\n", summary.UniqueAccounts)
	fmt.Fprintf(&b, "Purchases: %d (%d credits)\n", summary.PurchaseCount, summary.PurchasedCredits)
	fmt.Fprintf(&b, "Refunds: %d (%s%%)\n", summary.RefundCount, RefundRate(summary).StringFixed(1))

	if len(summary.Top) == 0 {
		b.WriteString("\nNo generations.")
		return b.String()
	}

	b.WriteString("\n🏆 Top users:\n")
	for i, u := range summary.Top {
		fmt.Fprintf(&b, "%d. %s: %d\n", i+1, DisplayName(u), u.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DisplayName renders an account for operator output.
func DisplayName(u models.AccountUsage) string {
	if u.Username != "" {
		return fmt.Sprintf("@%s (id:%d)", u.Username, u.AccountId)
	}
	return fmt.Sprintf("id:%d", u.AccountId)
}
