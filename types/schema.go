package types

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ValidationError is one schema violation in a 402 document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every violation found in a document.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "invalid payment requirements: " + strings.Join(parts, "; ")
}

var (
	schemasOnce sync.Once
	schemas     map[int]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[int]*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[int]*gojsonschema.Schema, 2)
		for version, file := range map[int]string{
			1: "schemas/payment_required_v1.json",
			2: "schemas/payment_required_v2.json",
		} {
			raw, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = err
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", file, err)
				return
			}
			schemas[version] = schema
		}
	})
	return schemas, schemasErr
}

// ValidatePaymentRequired checks a raw 402 document against the schema of the
// given protocol version. A nil return means the document is well formed.
func ValidatePaymentRequired(version int, data []byte) error {
	compiled, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := compiled[version]
	if !ok {
		return ValidationErrors{{Field: "x402Version", Message: fmt.Sprintf("unsupported version %d", version)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ValidationErrors{{Field: "(root)", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	errs := make(ValidationErrors, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, ValidationError{Field: re.Field(), Message: re.Description()})
	}
	return errs
}

// DetectVersion reads the x402Version field of a raw 402 document.
func DetectVersion(data []byte) (int, error) {
	var probe struct {
		X402Version *int `json:"x402Version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, ValidationErrors{{Field: "(root)", Message: err.Error()}}
	}
	if probe.X402Version == nil {
		return 0, ValidationErrors{{Field: "x402Version", Message: "x402Version is required"}}
	}
	return *probe.X402Version, nil
}

func decodePreservingNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
