// Package fingerprint derives stable content hashes from raw JSON payloads.
// The digest is computed over a canonical form, so key order and
// insignificant whitespace never affect it.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sum returns the hex SHA-256 digest of the canonical form of raw.
func Sum(raw json.RawMessage) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// Canonicalize re-serializes raw JSON with sorted object keys and no
// insignificant whitespace. Numbers keep their source representation.
func Canonicalize(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}

	// encoding/json marshals map keys in sorted order, which together with
	// UseNumber above gives a stable byte form.
	return json.Marshal(value)
}
