// Package auth implements session credential signing and verification.
//
// A credential is an HMAC-SHA256 signature over the (user, channel, issued)
// tuple, computed under a shared key. Signatures are base64-encoded and
// checked for freshness against an issuance window. When no key is
// configured the deployment runs in open mode and every credential passes.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Signature computes the credential signature for a (user, channel) pair
// issued at the given unix-millisecond time. It is a pure function of its
// inputs and therefore stable across processes.
func Signature(user, channel string, issued int64, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%s,%s,%d", user, channel, issued)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented signature against the shared key and the
// freshness window. now and issued are unix milliseconds.
//
// Signatures that travelled through a URL may have had '+' decoded to a
// space; Verify normalizes that before comparing. A malformed signature is
// simply a failed verification, never an error.
func Verify(sig, user, channel string, issued, now int64, key string, window time.Duration) bool {
	if key == "" {
		// Open mode: no shared key configured, nothing to check.
		return true
	}

	sig = strings.ReplaceAll(sig, " ", "+")

	want := Signature(user, channel, issued, key)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return false
	}

	age := time.Duration(now-issued) * time.Millisecond
	return age < window
}
