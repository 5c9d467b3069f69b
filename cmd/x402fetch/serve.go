package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"

	x402 "github.com/x402-foundation/x402fetch"
	"github.com/x402-foundation/x402fetch/internal/paywall"
	"github.com/x402-foundation/x402fetch/mcp"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the fetch tools to an MCP client over stdio",
		Description: `Exposes fetch_paid_resource and check_price. X402_MAX_AMOUNT is the
ceiling for tool calls that do not pass max_amount.`,
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.Close()

			client, err := env.httpClient(c.Context)
			if err != nil {
				return err
			}
			server := mcp.NewServer(client,
				mcp.WithLogger(env.log),
				mcp.WithDefaultCeiling(env.cfg.Ceiling()),
				mcp.WithVersion(version),
			)

			env.log.Info("serving mcp over stdio", nil)
			return server.Run(c.Context, &mcpsdk.StdioTransport{})
		},
	}
}

func paywallCommand() *cli.Command {
	return &cli.Command{
		Name:  "paywall",
		Usage: "Run a local paywalled server for testing clients",
		Description: `Serves /paid/* behind a 402 asking for USDC, and a free /healthz.
Payments are accepted without touching a chain.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides PAYWALL_ADDR)"},
			&cli.StringFlag{Name: "pay-to", Usage: "Receiving address (overrides PAYWALL_PAY_TO)"},
			&cli.StringFlag{Name: "network", Usage: "EVM network, CAIP-2 (overrides PAYWALL_NETWORK)"},
			&cli.StringFlag{Name: "price", Usage: "USDC price (overrides PAYWALL_PRICE)"},
			&cli.IntFlag{Name: "x402-version", Usage: "Protocol version, 1 or 2 (overrides PAYWALL_VERSION)"},
			&cli.BoolFlag{Name: "header-only", Usage: "Send the v2 402 document in the PAYMENT-REQUIRED header only"},
		},
		Action: paywallAction,
	}
}

func paywallAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg := env.cfg
	if c.IsSet("addr") {
		cfg.PaywallAddr = c.String("addr")
	}
	if c.IsSet("pay-to") {
		cfg.PaywallPayTo = c.String("pay-to")
	}
	if c.IsSet("network") {
		cfg.PaywallNetwork = c.String("network")
	}
	if c.IsSet("price") {
		cfg.PaywallPrice = c.String("price")
	}
	if c.IsSet("x402-version") {
		cfg.PaywallVersion = c.Int("x402-version")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.PaywallPayTo == "" {
		return fmt.Errorf("a receiving address is required: set PAYWALL_PAY_TO or --pay-to")
	}

	offer, err := paywall.USDCOffer(x402.Network(cfg.PaywallNetwork), cfg.PaywallPayTo, cfg.PaywallPrice)
	if err != nil {
		return err
	}
	opts := []paywall.Option{
		paywall.WithOffer(offer),
		paywall.WithVersion(cfg.PaywallVersion),
		paywall.WithLogger(env.log),
		paywall.WithDescription("x402fetch demo resource"),
		paywall.WithMimeType("application/json"),
	}
	if c.Bool("header-only") {
		opts = append(opts, paywall.WithHeaderOnly())
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.PaywallAddr,
		Handler:           paywall.NewRouter(opts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		env.log.Info("paywall listening", map[string]any{
			"addr":    cfg.PaywallAddr,
			"network": cfg.PaywallNetwork,
			"price":   cfg.PaywallPrice,
			"version": cfg.PaywallVersion,
		})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-c.Context.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	env.log.Info("paywall shutting down", nil)
	return server.Shutdown(ctx)
}
