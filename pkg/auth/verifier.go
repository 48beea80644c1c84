package auth

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"

	"github.com/caster-hub/caster/pkg/identity"
)

// signatureSize is the sr25519 signature length in bytes.
const signatureSize = 64

// signingContext is the sr25519 transcript label shared with substrate-style
// signers. Both sides must agree on it for verification to succeed.
var signingContext = []byte("substrate")

var (
	ErrMissingAuthorization   = errors.New("auth: Authorization header is required")
	ErrInvalidHeader          = errors.New("auth: Authorization header is invalid")
	ErrInvalidSignatureHex    = errors.New("auth: signature must be hex-encoded")
	ErrInvalidSignatureLength = errors.New("auth: signature must be 64 bytes")
	ErrInvalidSignature       = errors.New("auth: signature verification failed")
)

// Verifier validates detached sr25519 signatures over the canonical request
// string. It is stateless and safe for concurrent use.
type Verifier struct{}

// NewVerifier returns a request signature verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify checks the Authorization header against the exact method, path+query
// and body bytes the server routed. On success it returns the caller's ss58
// address.
func (v *Verifier) Verify(method, pathQS string, body []byte, authorizationHeader string) (string, error) {
	if authorizationHeader == "" {
		return "", ErrMissingAuthorization
	}

	parsed, err := ParseHeader(authorizationHeader)
	if err != nil {
		return "", err
	}

	signature, err := hex.DecodeString(parsed.SignatureHex)
	if err != nil {
		return "", ErrInvalidSignatureHex
	}
	if len(signature) != signatureSize {
		return "", ErrInvalidSignatureLength
	}

	publicKey, err := identity.Decode(parsed.SS58)
	if err != nil {
		return "", err
	}

	canonical := CanonicalRequest(method, pathQS, body)
	ok, err := verifySr25519(publicKey, signature, canonical)
	if err != nil || !ok {
		return "", ErrInvalidSignature
	}
	return parsed.SS58, nil
}

func verifySr25519(publicKey, signature, message []byte) (bool, error) {
	var pubBytes [32]byte
	copy(pubBytes[:], publicKey)
	pub := new(schnorrkel.PublicKey)
	if err := pub.Decode(pubBytes); err != nil {
		return false, fmt.Errorf("auth: decode public key: %w", err)
	}

	var sigBytes [64]byte
	copy(sigBytes[:], signature)
	sig := new(schnorrkel.Signature)
	if err := sig.Decode(sigBytes); err != nil {
		return false, fmt.Errorf("auth: decode signature: %w", err)
	}

	transcript := schnorrkel.NewSigningContext(signingContext, message)
	return pub.Verify(sig, transcript)
}

// SignRequest produces the Authorization header value for a request. Used by
// the validator's outbound platform client and by tests.
func SignRequest(secret *schnorrkel.SecretKey, ss58 string, method, pathQS string, body []byte) (string, error) {
	canonical := CanonicalRequest(method, pathQS, body)
	transcript := schnorrkel.NewSigningContext(signingContext, canonical)
	sig, err := secret.Sign(transcript)
	if err != nil {
		return "", fmt.Errorf("auth: sign request: %w", err)
	}
	encoded := sig.Encode()
	return fmt.Sprintf(`%s ss58="%s",sig="%s"`, Scheme, ss58, hex.EncodeToString(encoded[:])), nil
}
