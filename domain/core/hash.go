package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	DatasetFingerprint Hash
	ScreenFingerprint  Hash
	FitFingerprint     Hash
)

// Constructors
func NewDatasetFingerprint(data []byte) DatasetFingerprint { return DatasetFingerprint(NewHash(data)) }
func NewScreenFingerprint(data []byte) ScreenFingerprint   { return ScreenFingerprint(NewHash(data)) }
func NewFitFingerprint(data []byte) FitFingerprint         { return FitFingerprint(NewHash(data)) }

// String conversions
func (h DatasetFingerprint) String() string { return Hash(h).String() }
func (h ScreenFingerprint) String() string  { return Hash(h).String() }
func (h FitFingerprint) String() string     { return Hash(h).String() }

// ComputeFieldsHash hashes an ordered list of fields. Each field is
// length-prefixed so adjacent fields cannot collide by concatenation.
func ComputeFieldsHash(fields ...string) Hash {
	var data strings.Builder
	for _, f := range fields {
		data.WriteString(strconv.Itoa(len(f)))
		data.WriteString(":")
		data.WriteString(f)
	}
	return NewHash([]byte(data.String()))
}

// ComputeFloatsHash hashes a float slice using full-precision formatting,
// so fingerprints are stable across runs but sensitive to any value change.
func ComputeFloatsHash(values []float64) Hash {
	var data strings.Builder
	for _, v := range values {
		data.WriteString(fmt.Sprintf("%x;", v))
	}
	return NewHash([]byte(data.String()))
}
