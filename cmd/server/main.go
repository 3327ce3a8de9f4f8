package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/subosito/gotenv"

	"github.com/dpfeiffer/comsync/pkg/comdirect"
	"github.com/dpfeiffer/comsync/pkg/config"
	"github.com/dpfeiffer/comsync/pkg/executors"
	"github.com/dpfeiffer/comsync/pkg/server"
	"github.com/dpfeiffer/comsync/pkg/session"
	"github.com/dpfeiffer/comsync/pkg/store"
	"github.com/dpfeiffer/comsync/pkg/ynab"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "comsync",
	})

	var (
		port    = flag.String("port", "", "Server port (overrides listen_addr)")
		cfgFile = flag.String("config", "", "Config file (default is config.yaml)")
	)
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Build(*cfgFile, nil)
	if err != nil {
		logger.Fatal("config error", "err", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config error", "err", err)
	}

	st := store.NewFileStore(cfg.DataDir, logger)
	settings, err := st.LoadSettings()
	if err != nil {
		logger.Fatal("settings error", "err", err)
	}

	bank := executors.NewComdirectBank(comdirect.New(logger), comdirect.Credentials{
		ClientID:     cfg.Bank.ClientID,
		ClientSecret: cfg.Bank.ClientSecret,
		Username:     cfg.Bank.Username,
		Password:     cfg.Bank.Password,
	})
	ledger := ynab.New(cfg.YnabToken, logger)
	exec := executors.New(logger, session.NewManager(logger), bank, ledger, st, settings)

	addr := cfg.ListenAddr
	if *port != "" {
		addr = fmt.Sprintf("0.0.0.0:%s", *port)
	}
	srv := server.New(logger, exec, settings)
	if err := srv.Start(addr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
