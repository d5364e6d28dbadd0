package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata" // reset timezones must resolve on hosts without zoneinfo

	"github.com/abrezinsky/voterewards/internal/app"
	"github.com/abrezinsky/voterewards/internal/auth"
	"github.com/abrezinsky/voterewards/internal/config"
	"github.com/abrezinsky/voterewards/internal/logger"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

var (
	version = "dev"
)

// showBanner prints the startup logo
func showBanner() {
	width := 44
	border := strings.Repeat("═", width)
	title := fmt.Sprintf("VoteRewards %s", version)
	pad := (width - len(title)) / 2

	fmt.Printf("\n  %s╔%s╗%s\n", cyan, border, reset)
	fmt.Printf("  %s║%s%s%s%s%s║%s\n", cyan, yellow, strings.Repeat(" ", pad), title,
		strings.Repeat(" ", width-pad-len(title)), cyan, reset)
	fmt.Printf("  %s╚%s╝%s\n\n", cyan, border, reset)
}

func main() {
	cfg, err := config.Load(os.Args[1:], nil, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voterewards: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("voterewards %s\n", version)
		os.Exit(0)
	}

	format := logger.ParseFormat(cfg.LogFormat)
	if format == logger.FormatText {
		showBanner()
	}

	// Create logger with specified level and format
	appLog := logger.NewWithOptions(os.Stdout, format, logger.ParseLevel(cfg.LogLevel))
	if cfg.HTTPLog {
		appLog.EnableHTTPLogging()
	}

	// Setup admin authentication
	password := cfg.AdminPassword
	if password == "" {
		password = auth.GeneratePassword()
		appLog.Info("Admin password", "password", password)
	}
	adminAuth := auth.New(password)

	a, err := app.New(appLog, cfg, adminAuth)
	if err != nil {
		log.Fatal("Failed to initialize application: ", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx, cfg.Addr()); err != nil {
		appLog.Error("Server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
