// Package webhook serves the telephony provider's voice callbacks: call
// start, gather results, recording results and call status transitions.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // provider-mandated signature scheme
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// SignatureHeader carries the provider's request signature.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks provider webhook signatures. The provider signs
// the full callback URL concatenated with the sorted form parameters using
// HMAC-SHA1 over the account's auth token.
type SignatureValidator struct {
	authToken []byte
}

// NewSignatureValidator creates a validator. An empty token disables
// validation; only do that in development.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{authToken: []byte(authToken)}
}

// Enabled reports whether requests will actually be checked.
func (v *SignatureValidator) Enabled() bool {
	return len(v.authToken) > 0
}

// Validate checks the signature for a callback to the given URL with the
// given form parameters. The comparison is constant time.
func (v *SignatureValidator) Validate(callbackURL string, form url.Values, signature string) bool {
	if !v.Enabled() {
		return true
	}

	// Compare the canonical base64 encodings, not decoded bytes: decoding
	// discards the unused trailing bits of the final symbol, so several
	// encodings of the same digest would pass.
	expected := base64.StdEncoding.EncodeToString(v.compute(callbackURL, form))

	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

func (v *SignatureValidator) compute(callbackURL string, form url.Values) []byte {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	mac := hmac.New(sha1.New, v.authToken)
	mac.Write([]byte(callbackURL))

	for _, key := range keys {
		mac.Write([]byte(key))
		mac.Write([]byte(form.Get(key)))
	}

	return mac.Sum(nil)
}
