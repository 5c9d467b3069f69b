package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// BodyKind is how a response body was interpreted
type BodyKind int

const (
	BodyBinary BodyKind = iota
	BodyText
	BodyJSON
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	default:
		return "binary"
	}
}

// ParsedBody is a decoded response body. Exactly one of JSON, Text or Data is
// meaningful, according to Kind. Data always holds the raw bytes.
type ParsedBody struct {
	Kind     BodyKind
	JSON     interface{}
	Text     string
	Data     []byte
	MIMEType string
}

// Decode reads and closes resp.Body and interprets it by content type.
// JSON content that fails to parse degrades to text. When the server declares
// no Content-Type the type is sniffed from the bytes. Only read errors are
// returned.
func Decode(resp *http.Response) (*ParsedBody, error) {
	if resp == nil || resp.Body == nil {
		return &ParsedBody{Kind: BodyText}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	parsed := &ParsedBody{Data: data, MIMEType: contentType}
	mediaType := baseMediaType(contentType)

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if v, err := decodeJSON(data); err == nil {
			parsed.Kind = BodyJSON
			parsed.JSON = v
			return parsed, nil
		}
		parsed.Kind = BodyText
		parsed.Text = string(data)
	case strings.HasPrefix(mediaType, "text/"):
		parsed.Kind = BodyText
		parsed.Text = string(data)
	default:
		parsed.Kind = BodyBinary
	}
	return parsed, nil
}

// decodeJSON decodes exactly one JSON value, keeping numbers as json.Number.
// Anything after the value other than whitespace is an error.
func decodeJSON(data []byte) (interface{}, error) {
	var v interface{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func baseMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
