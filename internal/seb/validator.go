// Package seb verifies that requests claiming a locked-down exam session
// genuinely originate from a Safe Exam Browser configured for the quiz.
// The browser sends SHA256(requestURL + secret) in a header; knowing the
// per-quiz secret binds the attestation to the exact URL, so a hash
// captured for one endpoint cannot be replayed against another.
package seb

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HeaderConfigKeyHash is the request header carrying the attestation hash,
// in the form "hash" or "hash;extra".
const HeaderConfigKeyHash = "X-SafeExamBrowser-ConfigKeyHash"

// Invalid reasons.
const (
	ReasonHeaderMissing = "HeaderMissing"
	ReasonConfigMissing = "ConfigMissing"
	ReasonHashMismatch  = "HashMismatch"
)

// Which secret matched.
const (
	MatchedConfigKey      = "config_key"
	MatchedBrowserExamKey = "browser_exam_key"
)

// Policy is the quiz's lockdown configuration as stored server-side.
type Policy struct {
	RequireSEB     bool
	ConfigKey      string
	BrowserExamKey string // optional second secret
}

// Verdict is the validator's structured result. ExpectedHash is exposed
// for audit logging only and must never reach a client response.
type Verdict struct {
	Valid bool
	// Reason is set when Valid is false.
	Reason string
	// MatchedWith names the secret that matched when Valid is true and
	// lockdown was actually required.
	MatchedWith string
	// ReceivedHash/ExpectedHash are audit metadata.
	ReceivedHash string
	ExpectedHash string
}

// Validate checks the presented header value against the policy for the
// given request URL. It is a pure function of its inputs and safe to call
// concurrently.
func Validate(p Policy, presentedHeader, requestURL string) Verdict {
	if !p.RequireSEB {
		return Verdict{Valid: true}
	}
	if presentedHeader == "" {
		return Verdict{Reason: ReasonHeaderMissing}
	}
	// A require_seb quiz without a stored config key is a data integrity
	// violation, not a client error.
	if p.ConfigKey == "" {
		return Verdict{Reason: ReasonConfigMissing}
	}

	// Only the portion before the first ';' is the hash.
	received := strings.TrimSpace(strings.SplitN(presentedHeader, ";", 2)[0])

	expected := keyHash(requestURL, p.ConfigKey)
	if hashEqual(received, expected) {
		return Verdict{Valid: true, MatchedWith: MatchedConfigKey, ReceivedHash: received, ExpectedHash: expected}
	}
	if p.BrowserExamKey != "" {
		if bek := keyHash(requestURL, p.BrowserExamKey); hashEqual(received, bek) {
			return Verdict{Valid: true, MatchedWith: MatchedBrowserExamKey, ReceivedHash: received, ExpectedHash: bek}
		}
	}
	return Verdict{Reason: ReasonHashMismatch, ReceivedHash: received, ExpectedHash: expected}
}

// keyHash is the SEB attestation digest: lowercase hex of
// SHA256(url + secret).
func keyHash(url, secret string) string {
	sum := sha256.Sum256([]byte(url + secret))
	return hex.EncodeToString(sum[:])
}

func hashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
