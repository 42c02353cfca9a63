// Package dataurl encodes and decodes RFC 2397 base64 data URLs, the form in
// which edited images travel between the AI client, the workflow and export.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for strings that are not base64 data URLs.
var ErrInvalid = errors.New("invalid data URL")

// Encode returns "data:<mime>;base64,<payload>".
func Encode(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode splits a base64 data URL into its MIME type and payload bytes.
func Decode(url string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrInvalid)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalid)
	}
	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalid)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return mimeType, data, nil
}

// IsImage reports whether url is a data URL carrying an image payload.
func IsImage(url string) bool {
	return strings.HasPrefix(url, "data:image/")
}
