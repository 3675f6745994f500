package signature

import "crypto/hmac"

// Verify checks whether the given signature matches the expected HMAC
// signature for the payload, secret, and timestamp under this Signer's
// algorithm.
func (s *Signer) Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	return Verify(payload, secret, s.algorithm, timestamp, sig)
}

// Verify checks whether the given signature matches the expected HMAC
// signature for the payload, secret, algorithm, and timestamp.
func Verify(payload []byte, secret string, alg Algorithm, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, alg, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}
