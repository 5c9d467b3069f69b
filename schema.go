package x402

import (
	"encoding/json"
	"fmt"

	"github.com/x402-foundation/x402fetch/types"
)

// ParsePaymentRequired validates a 402 document and normalizes it into the
// version independent PaymentRequired shape. version selects the wire schema;
// 0 detects it from the x402Version field. Validation failures are returned as
// types.ValidationErrors.
func ParsePaymentRequired(body []byte, version int) (*PaymentRequired, error) {
	if version == 0 {
		detected, err := types.DetectVersion(body)
		if err != nil {
			return nil, err
		}
		version = detected
	}

	if err := types.ValidatePaymentRequired(version, body); err != nil {
		return nil, err
	}

	switch version {
	case ProtocolVersionV1:
		return normalizeV1(body)
	default:
		return normalizeV2(body)
	}
}

type rawPaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []json.RawMessage      `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

func normalizeV1(body []byte) (*PaymentRequired, error) {
	var doc rawPaymentRequired
	if err := decodeJSON(body, &doc); err != nil {
		return nil, types.ValidationErrors{{Field: "(root)", Message: err.Error()}}
	}

	out := &PaymentRequired{
		X402Version: ProtocolVersionV1,
		Error:       doc.Error,
		Accepts:     make([]PaymentRequirements, 0, len(doc.Accepts)),
	}

	var errs types.ValidationErrors
	for i, raw := range doc.Accepts {
		wire, err := types.ToPaymentRequirementsV1(raw)
		if err != nil {
			errs = append(errs, types.ValidationError{Field: fmt.Sprintf("accepts.%d", i), Message: err.Error()})
			continue
		}
		network, err := types.NormalizeNetwork(ProtocolVersionV1, wire.Network)
		if err != nil {
			errs = append(errs, types.ValidationError{Field: fmt.Sprintf("accepts.%d.network", i), Message: err.Error()})
			continue
		}

		out.Accepts = append(out.Accepts, PaymentRequirements{
			Scheme:            wire.Scheme,
			Network:           Network(network),
			Asset:             wire.Asset,
			Amount:            wire.EffectiveAmount(),
			PayTo:             wire.PayTo,
			MaxTimeoutSeconds: wire.MaxTimeoutSeconds,
			Extra:             wire.Extra,
			OutputSchema:      wire.OutputSchema,
			WireNetwork:       wire.Network,
			Raw:               raw,
		})

		if out.Resource == nil && wire.Resource != "" {
			out.Resource = &ResourceInfo{
				URL:         wire.Resource,
				Description: wire.Description,
				MimeType:    wire.MimeType,
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func normalizeV2(body []byte) (*PaymentRequired, error) {
	var doc rawPaymentRequired
	if err := decodeJSON(body, &doc); err != nil {
		return nil, types.ValidationErrors{{Field: "(root)", Message: err.Error()}}
	}

	out := &PaymentRequired{
		X402Version: ProtocolVersion,
		Error:       doc.Error,
		Resource:    doc.Resource,
		Accepts:     make([]PaymentRequirements, 0, len(doc.Accepts)),
		Extensions:  doc.Extensions,
	}

	var errs types.ValidationErrors
	for i, raw := range doc.Accepts {
		wire, err := types.ToPaymentRequirementsV2(raw)
		if err != nil {
			errs = append(errs, types.ValidationError{Field: fmt.Sprintf("accepts.%d", i), Message: err.Error()})
			continue
		}
		network, err := types.NormalizeNetwork(ProtocolVersion, wire.Network)
		if err != nil {
			errs = append(errs, types.ValidationError{Field: fmt.Sprintf("accepts.%d.network", i), Message: err.Error()})
			continue
		}

		out.Accepts = append(out.Accepts, PaymentRequirements{
			Scheme:            wire.Scheme,
			Network:           Network(network),
			Asset:             wire.Asset,
			Amount:            wire.EffectiveAmount(),
			PayTo:             wire.PayTo,
			MaxTimeoutSeconds: wire.MaxTimeoutSeconds,
			Extra:             wire.Extra,
			WireNetwork:       wire.Network,
			Raw:               raw,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
