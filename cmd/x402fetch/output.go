package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"

	x402http "github.com/x402-foundation/x402fetch/http"
)

// writeBody prints a decoded response body. JSON is indented, or filtered
// through jqFilter when one is given.
func writeBody(w io.Writer, body *x402http.ParsedBody, jqFilter string) error {
	if jqFilter != "" {
		if body.Kind != x402http.BodyJSON {
			return fmt.Errorf("--jq needs a JSON response, got %s", body.MIMEType)
		}
		return applyJQ(w, body.Data, jqFilter)
	}

	switch body.Kind {
	case x402http.BodyJSON:
		data, err := json.MarshalIndent(body.JSON, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		fmt.Fprintln(w, string(data))
	case x402http.BodyText:
		fmt.Fprint(w, body.Text)
	default:
		_, err := w.Write(body.Data)
		return err
	}
	return nil
}

// applyJQ runs filter over a JSON document and prints every result.
func applyJQ(w io.Writer, data []byte, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// gojq works on plain decoded values, not json.Number
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(w, string(out))
	}
}

func printResult(w io.Writer, result *x402http.Result) {
	fmt.Fprintf(w, "Status:      %s\n", result.Response.Status)
	fmt.Fprintf(w, "State:       %s\n", result.State)
	if result.Selected != nil {
		fmt.Fprintf(w, "Paid:        %s on %s\n", result.Selected.Amount, result.Selected.Network)
	}
	if s := result.Settlement; s != nil {
		fmt.Fprintf(w, "Settled:     %t\n", s.Success)
		if s.Transaction != "" {
			fmt.Fprintf(w, "Transaction: %s\n", s.Transaction)
		}
		if s.Payer != "" {
			fmt.Fprintf(w, "Payer:       %s\n", s.Payer)
		}
		if s.ErrorReason != "" {
			fmt.Fprintf(w, "Reason:      %s\n", s.ErrorReason)
		}
	}
}
