package evm

import (
	"math/big"
)

const (
	// Scheme identifier
	SchemeExact = "exact"

	// Default token decimals for USDC
	DefaultDecimals = 6

	// Default validity period (1 hour), used when requirements carry no timeout
	DefaultValidityPeriod = 3600 // seconds

	// ValidAfterSkew backdates validAfter so that a facilitator whose clock
	// runs slightly behind still accepts the authorization.
	ValidAfterSkew = 600 // seconds

	// EIP-3009 primary type
	PrimaryTypeTransferWithAuthorization = "TransferWithAuthorization"

	// Token metadata function names
	FunctionName    = "name"
	FunctionVersion = "version"
)

var (
	// Network chain IDs
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)

	// NetworkConfigs holds the default asset per normalized network. Token
	// name and version for the EIP-712 domain are taken from here when the
	// server's requirements do not carry them.
	NetworkConfigs = map[string]NetworkConfig{
		// Base Mainnet
		"eip155:8453": {
			ChainID: ChainIDBase,
			DefaultAsset: AssetInfo{
				Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC on Base
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Base Sepolia Testnet
		"eip155:84532": {
			ChainID: ChainIDBaseSepolia,
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e", // USDC on Base Sepolia
				Name:     "USDC",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Polygon PoS
		"eip155:137": {
			ChainID: big.NewInt(137),
			DefaultAsset: AssetInfo{
				Address:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Polygon Amoy Testnet
		"eip155:80002": {
			ChainID: big.NewInt(80002),
			DefaultAsset: AssetInfo{
				Address:  "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
				Name:     "USDC",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Avalanche C-Chain
		"eip155:43114": {
			ChainID: big.NewInt(43114),
			DefaultAsset: AssetInfo{
				Address:  "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		// Avalanche Fuji Testnet
		"eip155:43113": {
			ChainID: big.NewInt(43113),
			DefaultAsset: AssetInfo{
				Address:  "0x5425890298aed601595a70AB815c96711a31Bc65",
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		"eip155:4326": {
			ChainID: big.NewInt(4326),
			DefaultAsset: AssetInfo{
				Address:  "0xFAfDdbb3FC7688494971a79cc65DCa3EF82079E7",
				Name:     "MegaUSD",
				Version:  "1",
				Decimals: 18,
			},
		},
		"eip155:143": {
			ChainID: big.NewInt(143),
			DefaultAsset: AssetInfo{
				Address:  "0x754704Bc059F8C67012fEd69BC8A327a5aafb603",
				Name:     "USD Coin",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
	}

	// TokenMetadataABI covers the EIP-712 domain getters of an EIP-3009 token
	TokenMetadataABI = []byte(`[
		{
			"inputs": [],
			"name": "name",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "version",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// EIP712DomainTypes is the standard domain of an EIP-3009 token.
	EIP712DomainTypes = []TypedDataField{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	// TransferWithAuthorizationTypes are the EIP-3009 message fields, in
	// on-chain order.
	TransferWithAuthorizationTypes = []TypedDataField{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	}
)

// GetEIP3009Types returns the complete EIP-712 types map for TransferWithAuthorization.
func GetEIP3009Types() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"EIP712Domain":                       EIP712DomainTypes,
		PrimaryTypeTransferWithAuthorization: TransferWithAuthorizationTypes,
	}
}
