package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"github.com/dpfeiffer/comsync/pkg/comdirect"
	"github.com/dpfeiffer/comsync/pkg/config"
	"github.com/dpfeiffer/comsync/pkg/executors"
	"github.com/dpfeiffer/comsync/pkg/models"
	"github.com/dpfeiffer/comsync/pkg/server"
	"github.com/dpfeiffer/comsync/pkg/session"
	"github.com/dpfeiffer/comsync/pkg/store"
	"github.com/dpfeiffer/comsync/pkg/ynab"
)

var cfgFile string

const tanAttempts = 3

var rootCmd = &cobra.Command{
	Use:   "comsync",
	Short: "Sync comdirect transactions into YNAB",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

func newLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "comsync",
	})
}

func buildExecutor(cmd *cobra.Command, logger *log.Logger) (*executors.Executor, *config.Config, models.Settings, error) {
	_ = gotenv.Load()

	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, models.Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, models.Settings{}, err
	}

	st := store.NewFileStore(cfg.DataDir, logger)
	settings, err := st.LoadSettings()
	if err != nil {
		return nil, nil, models.Settings{}, err
	}

	bank := executors.NewComdirectBank(comdirect.New(logger), comdirect.Credentials{
		ClientID:     cfg.Bank.ClientID,
		ClientSecret: cfg.Bank.ClientSecret,
		Username:     cfg.Bank.Username,
		Password:     cfg.Bank.Password,
	})
	ledger := ynab.New(cfg.YnabToken, logger)
	exec := executors.New(logger, session.NewManager(logger), bank, ledger, st, settings)
	return exec, cfg, settings, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync: authenticate, fetch, review summary, export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		exec, _, _, err := buildExecutor(cmd, logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		sess, challenge, err := exec.Begin(ctx)
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Bank authentication"))
		fmt.Printf("Challenge issued: %s\n", challenge)

		reader := bufio.NewReader(os.Stdin)
		confirmed := false
		for attempt := 1; attempt <= tanAttempts; attempt++ {
			fmt.Print("Approve the TAN in your banking app, then press Enter... ")
			if _, err := reader.ReadString('\n'); err != nil {
				return err
			}
			err = exec.ConfirmTan(ctx, sess.ID)
			if err == nil {
				confirmed = true
				break
			}
			if errors.Is(err, comdirect.ErrTanRejected) {
				fmt.Println(warnStyle.Render("TAN not confirmed yet."))
				continue
			}
			return err
		}
		if !confirmed {
			return fmt.Errorf("tan was not confirmed after %d attempts", tanAttempts)
		}

		ruleErrs, err := exec.Fetch(ctx, sess.ID, noDate, noDate)
		for _, rerr := range ruleErrs {
			logger.Error("broken rule", "err", rerr)
		}
		if err != nil {
			return err
		}

		txs, err := exec.Transactions()
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Fetched transactions"))
		printTransactions(txs)

		counts, err := exec.StatusCounts()
		if err != nil {
			return err
		}
		printCounts(counts)

		doExport, _ := cmd.Flags().GetBool("export")
		if !doExport {
			fmt.Println("Run with --export to approve auto-categorized transactions and import them.")
			return nil
		}

		approved := models.StatusApproved
		for _, tx := range txs {
			if tx.Status != models.StatusAutoCategorized || tx.Duplicate.Kind != models.NotDuplicate {
				continue
			}
			if _, err := exec.ReviewTransaction(sess.ID, tx.Bank.ID, executors.ReviewUpdate{Status: &approved}); err != nil {
				return err
			}
		}

		done, result, err := exec.Export(ctx, sess.ID)
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Export"))
		fmt.Printf("sent %d, created %d, duplicates %d\n", result.Sent, result.Created, len(result.DuplicateImportIDs))
		fmt.Printf("session %s: %d imported, %d skipped of %d\n",
			done.ID, done.ImportedCount, done.SkippedCount, done.TransactionCount)
		return nil
	},
}

var budgetsCmd = &cobra.Command{
	Use:   "budgets",
	Short: "List YNAB budgets and their accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		exec, _, _, err := buildExecutor(cmd, logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		budgets, err := exec.Budgets(ctx)
		if err != nil {
			return err
		}
		for _, b := range budgets {
			fmt.Println(titleStyle.Render(fmt.Sprintf("%s (%s)", b.Name, b.ID)))
			accounts, err := exec.Accounts(ctx, b.ID)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				marker := " "
				if a.Closed {
					marker = "x"
				}
				fmt.Printf("  [%s] %-30s %s\n", marker, a.Name, a.ID)
			}
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for the review UI",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		exec, cfg, settings, err := buildExecutor(cmd, logger)
		if err != nil {
			return err
		}
		return server.New(logger, exec, settings).Start(cfg.ListenAddr)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_ = gotenv.Load()
		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		pp.Println(cfg.Redacted())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("data_dir", "", "Directory holding rules.yaml, settings.yaml and session history")

	syncCmd.Flags().Bool("export", false, "Approve auto-categorized transactions and import them")
	serveCmd.Flags().String("listen_addr", "", "Listen address (host:port)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(budgetsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// noDate lets Fetch fall back to its default window.
var noDate = time.Time{}
