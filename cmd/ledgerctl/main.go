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
	"context"
	"fmt"
	"os"

	"stars-imagegen-bot/internal/api"
	"stars-imagegen-bot/internal/common"
	"stars-imagegen-bot/internal/config"
	"stars-imagegen-bot/internal/database"
	"stars-imagegen-bot/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ledger holds the services opened by the root command for subcommands.
type ledger struct {
	cfg     *models.Config
	db      *database.Service
	service *api.LedgerService
	cleanup func()
}

var (
	dbPath string
	state  ledger
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Inspect and correct the credit ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}

		_, loggerCleanup := common.InitializeLogger()

		db, err := common.InitializeDatabaseOnly(cmd.Context(), cfg)
		if err != nil {
			loggerCleanup()
			return err
		}

		state = ledger{
			cfg:     cfg,
			db:      db,
			service: api.NewLedgerService(db),
			cleanup: func() {
				db.Close()
				loggerCleanup()
			},
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if state.cleanup != nil {
			state.cleanup()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the ledger database (default: DATABASE_PATH)")

	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(creditCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(topCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if state.cleanup != nil {
			state.cleanup()
		}
		zap.L().Error("Command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
