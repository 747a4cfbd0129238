package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
const (
	DomainSchema   = "persist/schema/v1"
	DomainWriteLog = "persist/writelog/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The separator keeps
// the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalSchema renders a compiled schema as canonical JSON.
func CanonicalSchema(s *Schema) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	return MarshalCanonical(generic)
}

// SchemaHash computes a stable identity for a compiled schema.
func SchemaHash(s *Schema) (string, error) {
	canonical, err := CanonicalSchema(s)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

// WriteLogHash computes a stable identity for a recorded write log.
func WriteLogHash(entries []map[string]any) (string, error) {
	canonical, err := MarshalCanonical(entries)
	if err != nil {
		return "", fmt.Errorf("WriteLogHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainWriteLog, canonical), nil
}

// MustSchemaHash is like SchemaHash but panics on error.
// Use only in tests or when the schema is known to be valid.
func MustSchemaHash(s *Schema) string {
	h, err := SchemaHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
