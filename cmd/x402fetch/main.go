package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A missing .env file is fine; the environment may already be set
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "x402fetch",
		Usage: "Fetch HTTP resources, paying for them with x402",
		Description: `A command-line client for x402 paywalled resources.

Wallets and defaults come from the environment (EVM_PRIVATE_KEY, SVM_PRIVATE_KEY,
X402_MAX_AMOUNT, ...). A .env file in the working directory is loaded first.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			fetchCommand(),
			priceCommand(),
			mcpCommand(),
			paywallCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address",
				EnvVars: []string{"METRICS_ADDR"},
			},
		},
	}
}
