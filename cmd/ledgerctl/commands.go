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

package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/notify"
	"stars-imagegen-bot/internal/report"
	"stars-imagegen-bot/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [ACCOUNT_ID]",
	Short: "Show one account, or every account when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var ids []int64
		if len(args) == 1 {
			id, err := parseAccountId(args[0])
			if err != nil {
				return err
			}
			ids = []int64{id}
		} else {
			all, err := state.db.ListAccountIds(ctx)
			if err != nil {
				return err
			}
			ids = all
		}

		common.PrintHeader("ACCOUNT BALANCES", common.DefaultWidth)
		var total int64
		for i, id := range ids {
			account, err := state.db.GetAccount(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrAccountNotFound) {
					return fmt.Errorf("account %d not found", id)
				}
				return err
			}
			generations, err := state.db.CountGenerations(ctx, id)
			if err != nil {
				return err
			}
			total += account.Balance

			name := account.Username
			if name == "" {
				name = "-"
			}
			fmt.Printf("%s%-14d %-24s %8d credits  %5d images  active %s\n",
				common.BoxPrefix(i == len(ids)-1),
				account.Id, name, account.Balance, generations,
				account.LastActiveAt.UTC().Format(time.DateTime))
		}
		common.PrintFooter(fmt.Sprintf("SUMMARY: %d accounts holding %d credits", len(ids), total), common.DefaultWidth)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history ACCOUNT_ID",
	Short: "List ledger entries of an account, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAccountId(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		records, err := state.service.History(cmd.Context(), id, limit, offset)
		if err != nil {
			return err
		}

		common.PrintHeader(fmt.Sprintf("LEDGER HISTORY FOR %d", id), common.WideWidth)
		for i, record := range records {
			fmt.Println(common.BoxPrefix(i == len(records)-1) + common.FormatEntry(record))
		}
		common.PrintFooter(fmt.Sprintf("%d entries", len(records)), common.WideWidth)
		return nil
	},
}

var creditCmd = &cobra.Command{
	Use:   "credit ACCOUNT_ID AMOUNT",
	Short: "Grant credits to an account",
	Long: `Grant credits to an account as an operator correction.
Pass --ref to make the grant idempotent, for example when compensating a
failed refund reported by the bot.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAccountId(args[0])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[1])
		}
		ref, _ := cmd.Flags().GetString("ref")

		result, err := state.service.ManualCredit(cmd.Context(), id, amount, ref)
		if err != nil {
			return err
		}
		if !result.Applied {
			fmt.Printf("Reference already used, nothing credited. Balance: %d\n", result.Balance)
			return nil
		}
		fmt.Printf("Credited %d to %d (entry #%d). Balance: %d\n", amount, id, result.EntryId, result.Balance)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the daily report for a local day (default: yesterday)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scheduler := report.NewScheduler(state.db, notify.Nop{}, state.cfg.Report)
		loc := scheduler.Location()

		date, _ := cmd.Flags().GetString("date")
		var (
			text string
			err  error
		)
		if date == "" {
			text, err = scheduler.Build(cmd.Context(), time.Now())
		} else {
			day, parseErr := time.ParseInLocation(time.DateOnly, date, loc)
			if parseErr != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD: %w", date, parseErr)
			}
			start, end := report.DayWindow(day, loc)
			text, err = scheduler.BuildRange(cmd.Context(), start, end)
		}
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Verify every balance equals the sum of its ledger entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mismatched, err := state.service.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		if len(mismatched) == 0 {
			fmt.Println("✓ All balances match their ledger")
			return nil
		}
		for _, id := range mismatched {
			fmt.Printf("✗ account %d does not match its ledger\n", id)
		}
		zap.L().Warn("Reconciliation found mismatches", zap.Int64s("account_ids", mismatched))
		return fmt.Errorf("%d accounts out of balance", len(mismatched))
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank accounts by successful generations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		usage, err := state.service.Leaderboard(cmd.Context(), limit)
		if err != nil {
			return err
		}

		common.PrintHeader("TOP ACCOUNTS", common.DefaultWidth)
		for i, u := range usage {
			fmt.Printf("%s%2d. %-40s %6d images\n", common.BoxPrefix(i == len(usage)-1), i+1, report.DisplayName(u), u.Count)
		}
		common.PrintSeparator("=", common.DefaultWidth)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Number of entries (max 100)")
	historyCmd.Flags().Int("offset", 0, "Entries to skip")
	creditCmd.Flags().String("ref", "", "Idempotency reference (default: a fresh manual:<uuid>)")
	reportCmd.Flags().String("date", "", "Local day in YYYY-MM-DD (report timezone)")
	topCmd.Flags().Int("limit", 10, "Number of accounts")
}

func parseAccountId(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid account id %q", arg)
	}
	return id, nil
}
