package svm

const (
	// Scheme identifier
	SchemeExact = "exact"

	// Public cluster endpoints used when no RPC is configured
	MainnetRPCURL = "https://api.mainnet-beta.solana.com"
	DevnetRPCURL  = "https://api.devnet.solana.com"

	// DefaultComputeUnitLimit covers ComputeLimit + ComputePrice + TransferChecked
	DefaultComputeUnitLimit uint32 = 6500

	// DefaultComputeUnitPrice is the priority fee in micro-lamports per compute unit
	DefaultComputeUnitPrice uint64 = 1

	// Error reasons surfaced inside signing errors
	ErrATANotFound          = "invalid_exact_solana_payload_ata_not_found"
	ErrUnknownTokenProgram  = "invalid_exact_solana_payload_unknown_token_program"
	ErrFeePayerMissing      = "invalid_exact_solana_payload_missing_fee_payer"
	ErrBlockhashUnavailable = "invalid_exact_solana_payload_blockhash_unavailable"
)
