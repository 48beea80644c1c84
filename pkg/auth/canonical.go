// Package auth implements the signed-request trust protocol: the canonical
// signing string, Authorization header parsing, sr25519 signature
// verification, and the HTTP middleware that gates every control-plane call.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const canonicalSeparator = "\n"

// CanonicalRequest returns the byte string a caller must sign:
// METHOD + "\n" + PATH_AND_QUERY + "\n" + HEX(SHA256(body)).
// The method and path must be exactly what the server routes; any
// normalization difference is a verification failure by construction.
func CanonicalRequest(method, pathQS string, body []byte) []byte {
	normalizedMethod := strings.ToUpper(method)
	if normalizedMethod == "" {
		normalizedMethod = "GET"
	}
	normalizedPath := pathQS
	if normalizedPath == "" {
		normalizedPath = "/"
	}
	bodyHash := sha256.Sum256(body)
	canonical := normalizedMethod + canonicalSeparator +
		normalizedPath + canonicalSeparator +
		hex.EncodeToString(bodyHash[:])
	return []byte(canonical)
}
