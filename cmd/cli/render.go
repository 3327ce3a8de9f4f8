package main

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/dpfeiffer/comsync/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dupStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func printTransactions(txs []models.SyncTransaction) {
	for _, tx := range txs {
		line := fmt.Sprintf("%s  %10s  %-30s  %s",
			tx.Bank.BookingDate.Format("2006-01-02"), tx.Bank.Amount, truncate(tx.Payee(), 30), tx.Status)
		switch tx.Duplicate.Kind {
		case models.ConfirmedDuplicate:
			line += dupStyle.Render("  [duplicate]")
		case models.PossibleDuplicate:
			line += warnStyle.Render("  [possible duplicate: " + tx.Duplicate.Reason + "]")
		}
		for _, l := range tx.Links {
			line += warnStyle.Render("  -> " + l.Label)
		}
		fmt.Println(line)
	}
}

func printCounts(counts map[models.TransactionStatus]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	fmt.Println(titleStyle.Render("Review status"))
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[models.TransactionStatus(k)])
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
