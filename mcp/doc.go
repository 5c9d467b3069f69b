// Package mcp exposes the paying HTTP client as Model Context Protocol tools.
//
// An agent connected to the server can fetch x402-protected resources and
// ask for their price before paying. The spending ceiling comes from the tool
// call arguments, falling back to the server default.
//
// # Server Usage
//
//	signers := x402.Newx402Client()
//	evm.RegisterClient(signers, evmSigner)
//
//	server := mcp.NewServer(x402http.NewClient(signers),
//	    mcp.WithDefaultCeiling(big.NewInt(50000)),
//	)
//	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
//	    log.Fatal(err)
//	}
//
// # Tools
//
// fetch_paid_resource performs one paid fetch. When the quoted price exceeds
// the ceiling the result carries a confirmation instead of an error. Calling
// again with max_amount set to the confirmation's newAmount pays, provided
// the price has not risen in between; confirmed=true marks such a call and
// is rejected without max_amount.
//
// check_price probes a URL without paying and reports the highest amount it
// asks for.
//
// Settlement details of a paid fetch are attached to the result _meta under
// PaymentResponseMetaKey.
package mcp
