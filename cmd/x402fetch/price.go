package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	x402 "github.com/x402-foundation/x402fetch"
)

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:      "price",
		Usage:     "Show what a URL costs without paying",
		ArgsUsage: "URL",
		Flags: append(requestFlags(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		),
		Action: priceAction,
	}
}

type priceOutput struct {
	URL     string `json:"url"`
	Paid    bool   `json:"paid"`
	Amount  string `json:"amount,omitempty"`
	Display string `json:"display,omitempty"`
}

func priceAction(c *cli.Context) error {
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
	req, err := buildRequest(ctx, c.String("method"), c.Args().First(), c.StringSlice("header"), "")
	if err != nil {
		return err
	}

	out := priceOutput{URL: req.URL.String()}
	if amount, ok := client.CheckPrice(ctx, req); ok {
		out.Paid = true
		out.Amount = amount.String()
		out.Display = x402.FormatUnits(amount, int32(c.Int("decimals")))
	}

	if c.Bool("json") {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal price: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}

	if !out.Paid {
		fmt.Fprintf(c.App.Writer, "%s: no payment required\n", out.URL)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s: %s (%s units)\n", out.URL, out.Display, out.Amount)
	return nil
}
