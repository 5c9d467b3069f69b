package types

import "encoding/json"

// PaymentPayloadV2 represents a v2 payment payload structure
// V2 has accepted field with nested scheme/network/requirements
type PaymentPayloadV2 struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    json.RawMessage        `json:"accepted"`
	Resource    *ResourceInfoV2        `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentRequirementsV2 represents v2 payment requirements structure
type PaymentRequirementsV2 struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"` // tolerated, loses to amount
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// EffectiveAmount returns amount when present, otherwise maxAmountRequired.
func (r PaymentRequirementsV2) EffectiveAmount() string {
	if r.Amount != "" {
		return r.Amount
	}
	return r.MaxAmountRequired
}

// PaymentRequiredV2 represents a v2 402 response structure
type PaymentRequiredV2 struct {
	X402Version int                     `json:"x402Version"`
	Error       string                  `json:"error,omitempty"`
	Resource    *ResourceInfoV2         `json:"resource,omitempty"`
	Accepts     []PaymentRequirementsV2 `json:"accepts"`
	Extensions  map[string]interface{}  `json:"extensions,omitempty"`
}

// ResourceInfoV2 describes the resource being accessed
type ResourceInfoV2 struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ToPaymentRequirementsV2 unmarshals bytes to v2 payment requirements.
// Numbers inside extra are kept as json.Number.
func ToPaymentRequirementsV2(data []byte) (*PaymentRequirementsV2, error) {
	var requirements PaymentRequirementsV2
	if err := decodePreservingNumbers(data, &requirements); err != nil {
		return nil, err
	}
	return &requirements, nil
}

// ToPaymentPayloadV2 unmarshals bytes to v2 payment payload
func ToPaymentPayloadV2(data []byte) (*PaymentPayloadV2, error) {
	var payload PaymentPayloadV2
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
