package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

// TokenBytes is the entropy of tokens from RandomToken
const TokenBytes = 32

// RandomToken returns a hex encoded, cryptographically secure random token
func RandomToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Keccak256 returns the legacy Keccak-256 digest used by EVM chains
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Keccak256Hex returns the 0x-prefixed hex Keccak-256 digest
func Keccak256Hex(data ...[]byte) string {
	sum := Keccak256(data...)
	return "0x" + hex.EncodeToString(sum[:])
}

// CanonicalJSON marshals v with sorted object keys. encoding/json already
// sorts map keys, so round-tripping through a generic value canonicalises
// struct field order as well.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// HashCanonical returns the Keccak-256 of v's canonical JSON encoding
func HashCanonical(v interface{}) ([32]byte, []byte, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return Keccak256(canonical), canonical, nil
}
