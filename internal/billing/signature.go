// Package billing – webhook signature verification.
//
// Deliveries carry a header of the form
//
//	Stripe-Signature: t=<unix seconds>,v1=<hex hmac>
//
// where the MAC is HMAC-SHA256 over "<t>.<raw body>" with the shared
// endpoint secret. Verification runs against the raw, unparsed request
// bytes; any re-encoding of the payload breaks the MAC, so the handler must
// hand the body over untouched. A failed check is non-retryable: the
// delivery is rejected before any subscription state is read or written.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// ErrSignature covers every verification failure: malformed header, stale
// timestamp, or MAC mismatch. The delivery must not be reprocessed as-is.
var ErrSignature = errors.New("webhook signature verification failed")

// VerifySignature checks header against the raw payload bytes using secret.
// Timestamps older (or newer) than tolerance are rejected to blunt replay
// attacks. It returns ErrSignature-wrapped errors only, so callers can
// translate every failure mode to the same non-retryable rejection.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	ts, sigs, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if d := now.Sub(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching v1 signature", ErrSignature)
}

// parseSignatureHeader extracts the timestamp and all v1 signatures from a
// comma-separated "k=v" header.
func parseSignatureHeader(header string) (ts int64, sigs []string, err error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, fmt.Errorf("%w: missing signature header", ErrSignature)
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: malformed timestamp", ErrSignature)
			}
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 {
		return 0, nil, fmt.Errorf("%w: missing timestamp", ErrSignature)
	}
	if len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: missing v1 signature", ErrSignature)
	}
	return ts, sigs, nil
}
