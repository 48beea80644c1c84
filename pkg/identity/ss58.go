// Package identity provides ss58 address encoding for sr25519 public keys.
// Participants are identified on the wire by their ss58 address; the decoded
// public key is what signature verification runs against.
package identity

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// DefaultPrefix is the ss58 network prefix for caster identities.
const DefaultPrefix = 42

// PublicKeySize is the sr25519 public key length in bytes.
const PublicKeySize = 32

var ErrInvalidAddress = errors.New("identity: invalid ss58 address")

// ss58Preamble is prepended to the checksum input per the ss58 registry.
var ss58Preamble = []byte("SS58PRE")

// Decode parses an ss58 address and returns the embedded 32-byte public key.
// Only single-byte network prefixes (0..63) are accepted.
func Decode(address string) ([]byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	// prefix byte + 32-byte key + 2-byte checksum
	if len(raw) != 1+PublicKeySize+2 {
		return nil, fmt.Errorf("%w: unexpected payload length %d", ErrInvalidAddress, len(raw))
	}
	if raw[0] > 63 {
		return nil, fmt.Errorf("%w: unsupported network prefix %d", ErrInvalidAddress, raw[0])
	}

	body := raw[:1+PublicKeySize]
	checksum := raw[1+PublicKeySize:]
	expected := ss58Checksum(body)
	if checksum[0] != expected[0] || checksum[1] != expected[1] {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}

	key := make([]byte, PublicKeySize)
	copy(key, raw[1:1+PublicKeySize])
	return key, nil
}

// Encode renders a 32-byte public key as an ss58 address under the given
// network prefix.
func Encode(publicKey []byte, prefix byte) (string, error) {
	if len(publicKey) != PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes", ErrInvalidAddress, PublicKeySize)
	}
	if prefix > 63 {
		return "", fmt.Errorf("%w: unsupported network prefix %d", ErrInvalidAddress, prefix)
	}

	body := make([]byte, 0, 1+PublicKeySize+2)
	body = append(body, prefix)
	body = append(body, publicKey...)
	checksum := ss58Checksum(body)
	body = append(body, checksum[0], checksum[1])
	return base58.Encode(body), nil
}

func ss58Checksum(body []byte) [2]byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Preamble)
	h.Write(body)
	sum := h.Sum(nil)
	return [2]byte{sum[0], sum[1]}
}
