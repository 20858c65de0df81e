package common

import (
	"fmt"
	"strings"
	"time"

	"stars-imagegen-bot/internal/models"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// FormatAmount renders a signed credit amount, e.g. "+10" or "-1".
func FormatAmount(amount int64) string {
	if amount > 0 {
		return fmt.Sprintf("+%d", amount)
	}
	return fmt.Sprintf("%d", amount)
}

// FormatEntry renders one ledger record on a single line.
func FormatEntry(record models.TransactionRecord) string {
	line := fmt.Sprintf("#%-6d %s  %-16s %6s  → %d",
		record.Id,
		record.CreatedAt.UTC().Format(time.DateTime),
		record.Kind,
		FormatAmount(record.Amount),
		record.BalanceAfter)
	if record.PaymentRef != "" {
		line += "  [" + record.PaymentRef + "]"
	}
	return line
}

// FormatAccount renders the balance line shared by the CLI and the bot.
func FormatAccount(overview *models.AccountOverview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Balance: %d credits\n", overview.Account.Balance)
	fmt.Fprintf(&b, "Total generations: %d\n", overview.Generations)
	if overview.InFlight > 0 {
		fmt.Fprintf(&b, "In progress: %d\n", overview.InFlight)
	}
	fmt.Fprintf(&b, "Last active: %s UTC", overview.Account.LastActiveAt.UTC().Format(time.DateTime))
	return b.String()
}
