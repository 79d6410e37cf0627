// Package signature checks the HMAC github attaches to every webhook delivery.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
)

// Algorithm is the only digest accepted in the X-Hub-Signature header
const Algorithm = "sha1"

// digestLen is the length of a hex encoded sha1 digest
const digestLen = 2 * sha1.Size

// Compute returns the header value github would send for body signed with secret
func Compute(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return Algorithm + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Authorize reports whether header is exactly sha1= followed by the lower
// case hex HMAC of body under secret. Digests are compared in constant time.
func Authorize(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	algo, sig, ok := strings.Cut(header, "=")
	if !ok || algo != Algorithm || !isLowerHex(sig) {
		return false
	}
	if err := github.ValidateSignature(header, body, []byte(secret)); err != nil {
		log.WithError(err).Debug("signature mismatch")
		return false
	}
	return true
}

func isLowerHex(s string) bool {
	if len(s) != digestLen {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
