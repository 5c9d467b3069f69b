package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"

	x402 "github.com/x402-foundation/x402fetch"
	x402http "github.com/x402-foundation/x402fetch/http"
	"github.com/x402-foundation/x402fetch/internal/config"
)

// defaultDecimals is used to read and display prices; USDC has 6.
const defaultDecimals = 6

func requestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "method",
			Aliases: []string{"X"},
			Value:   http.MethodGet,
			Usage:   "HTTP method",
		},
		&cli.StringSliceFlag{
			Name:    "header",
			Aliases: []string{"H"},
			Usage:   "Request header as 'Name: value' (repeatable)",
		},
		&cli.IntFlag{
			Name:  "decimals",
			Value: defaultDecimals,
			Usage: "Decimals of the payment asset, for reading and showing prices",
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a URL, paying when the server asks for it",
		ArgsUsage: "URL",
		Flags: append(requestFlags(),
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Request body",
			},
			&cli.StringFlag{
				Name:  "max-amount",
				Usage: "Most to pay without asking, in the asset's smallest unit (overrides X402_MAX_AMOUNT)",
			},
			&cli.StringFlag{
				Name:  "max-price",
				Usage: "Most to pay without asking, as a decimal amount such as 0.05",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Pay prices above the ceiling without asking",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to a JSON response body",
			},
			&cli.BoolFlag{
				Name:    "include",
				Aliases: []string{"i"},
				Usage:   "Print status and settlement to stderr",
			},
		),
		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("url is required")
	}

	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := c.Context
	client, err := env.httpClient(ctx)
	if err != nil {
		return err
	}

	decimals := int32(c.Int("decimals"))
	ceiling, err := ceilingFrom(c, env.cfg, decimals)
	if err != nil {
		return err
	}

	req, err := buildRequest(ctx, c.String("method"), c.Args().First(), c.StringSlice("header"), c.String("data"))
	if err != nil {
		return err
	}

	call, err := client.NewCall(req)
	if err != nil {
		return err
	}
	result, err := call.Execute(ctx, ceiling, false)
	if err != nil {
		return err
	}

	if result.NeedsConfirmation() {
		if result.Response != nil {
			result.Response.Body.Close()
		}
		ok, err := confirmPrice(c, result.Confirmation, decimals)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("payment declined: price %s exceeds ceiling %s",
				x402.FormatUnits(result.Confirmation.NewAmount, decimals),
				x402.FormatUnits(result.Confirmation.OldCeiling, decimals))
		}
		// Resume the same call; the quoted 402 is reused, not fetched again
		result, err = call.Execute(ctx, nil, true)
		if err != nil {
			return err
		}
	}

	if c.Bool("include") {
		printResult(c.App.ErrWriter, result)
	}

	body, err := x402http.Decode(result.Response)
	if err != nil {
		return err
	}
	return writeBody(c.App.Writer, body, c.String("jq"))
}

// ceilingFrom picks the ceiling from flags, falling back to the environment.
// Nil means no ceiling.
func ceilingFrom(c *cli.Context, cfg *config.Config, decimals int32) (*big.Int, error) {
	switch {
	case c.IsSet("max-price"):
		ceiling, err := x402.ParseUnits(c.String("max-price"), decimals)
		if err != nil {
			return nil, fmt.Errorf("--max-price: %w", err)
		}
		return ceiling, nil
	case c.IsSet("max-amount"):
		ceiling, err := x402.ParseAmount(c.String("max-amount"))
		if err != nil {
			return nil, fmt.Errorf("--max-amount: %w", err)
		}
		return ceiling, nil
	default:
		return cfg.Ceiling(), nil
	}
}

func buildRequest(ctx context.Context, method, url string, headers []string, data string) (*http.Request, error) {
	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	for _, header := range headers {
		name, value, ok := strings.Cut(header, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: value'", header)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return req, nil
}

// confirmPrice asks on the terminal whether to pay above the ceiling.
func confirmPrice(c *cli.Context, confirmation *x402http.PriceConfirmation, decimals int32) (bool, error) {
	if c.Bool("yes") {
		return true, nil
	}

	fmt.Fprintf(c.App.ErrWriter, "Price %s exceeds your ceiling of %s. Pay? [y/N] ",
		x402.FormatUnits(confirmation.NewAmount, decimals),
		x402.FormatUnits(confirmation.OldCeiling, decimals))

	answer, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
