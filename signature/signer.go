// Package signature provides HMAC webhook signing and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // sha1 kept for legacy receivers that cannot upgrade
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algorithm selects the HMAC hash used to sign a delivery.
type Algorithm string

// Supported signing algorithms.
const (
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmSHA512 Algorithm = "sha512"

	// AlgorithmSHA1 exists only for receivers that cannot verify anything
	// stronger. New endpoints should not use it.
	AlgorithmSHA1 Algorithm = "sha1"
)

// Default header names carrying the signature and the signing timestamp.
const (
	DefaultHeader          = "X-Webhook-Signature"
	DefaultTimestampHeader = "X-Webhook-Timestamp"
)

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmSHA256, AlgorithmSHA512, AlgorithmSHA1:
		return true
	}
	return false
}

func (a Algorithm) hasher() func() hash.Hash {
	switch a {
	case AlgorithmSHA512:
		return sha512.New
	case AlgorithmSHA1:
		return sha1.New
	default:
		return sha256.New
	}
}

// Signer computes HMAC signatures for webhook payloads.
type Signer struct {
	algorithm Algorithm
}

// NewSigner returns a Signer using HMAC-SHA256.
func NewSigner() *Signer {
	return &Signer{algorithm: AlgorithmSHA256}
}

// NewSignerWithAlgorithm returns a Signer using the given algorithm.
// Unsupported values fall back to SHA256.
func NewSignerWithAlgorithm(alg Algorithm) *Signer {
	if !alg.Valid() {
		alg = AlgorithmSHA256
	}
	return &Signer{algorithm: alg}
}

// Algorithm returns the algorithm this Signer signs with.
func (s *Signer) Algorithm() Algorithm {
	return s.algorithm
}

// Sign generates the HMAC signature for the given payload.
// The content to sign is "{timestamp}.{payload}".
// Returns a signature in the format "<algorithm>=<hex>".
func (s *Signer) Sign(payload []byte, secret string, timestamp int64) string {
	return Sign(payload, secret, s.algorithm, timestamp)
}

// Sign generates the HMAC signature for the given payload using the given
// algorithm. The content to sign is "{timestamp}.{payload}".
// Returns a signature in the format "<algorithm>=<hex>".
func Sign(payload []byte, secret string, alg Algorithm, timestamp int64) string {
	if !alg.Valid() {
		alg = AlgorithmSHA256
	}
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(alg.hasher(), []byte(secret))
	mac.Write([]byte(content))
	return string(alg) + "=" + hex.EncodeToString(mac.Sum(nil))
}
