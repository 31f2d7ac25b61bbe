package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

// signHeader builds a provider-style signature header for payload at ts.
func signHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature_Valid(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	header := signHeader(payload, "whsec_test", now)

	if err := VerifySignature(payload, header, "whsec_test", 5*time.Minute, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)
	header := signHeader(payload, "whsec_other", now)

	err := VerifySignature(payload, header, "whsec_test", 5*time.Minute, now)
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	now := time.Now()
	header := signHeader([]byte(`{"id":"evt_1"}`), "whsec_test", now)

	err := VerifySignature([]byte(`{"id":"evt_2"}`), header, "whsec_test", 5*time.Minute, now)
	if !errors.Is(err, ErrSignature) {
		t.Fatalf("err = %v, want ErrSignature", err)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	now := time.Now()
	payload := []byte(`{}`)

	old := signHeader(payload, "whsec_test", now.Add(-10*time.Minute))
	if err := VerifySignature(payload, old, "whsec_test", 5*time.Minute, now); !errors.Is(err, ErrSignature) {
		t.Fatalf("stale: err = %v, want ErrSignature", err)
	}

	future := signHeader(payload, "whsec_test", now.Add(10*time.Minute))
	if err := VerifySignature(payload, future, "whsec_test", 5*time.Minute, now); !errors.Is(err, ErrSignature) {
		t.Fatalf("future: err = %v, want ErrSignature", err)
	}
}

func TestVerifySignature_MalformedHeaders(t *testing.T) {
	now := time.Now()
	payload := []byte(`{}`)
	good := signHeader(payload, "whsec_test", now)

	cases := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"missing timestamp", "v1=deadbeef"},
		{"missing signature", fmt.Sprintf("t=%d", now.Unix())},
		{"garbage timestamp", "t=abc,v1=deadbeef"},
		{"bare values", "nonsense"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := VerifySignature(payload, tc.header, "whsec_test", 5*time.Minute, now); !errors.Is(err, ErrSignature) {
				t.Fatalf("err = %v, want ErrSignature", err)
			}
		})
	}

	// Sanity: the well-formed header still passes.
	if err := VerifySignature(payload, good, "whsec_test", 5*time.Minute, now); err != nil {
		t.Fatalf("control case failed: %v", err)
	}
}

func TestVerifySignature_MultipleV1OneMatches(t *testing.T) {
	now := time.Now()
	payload := []byte(`{}`)
	good := signHeader(payload, "whsec_test", now)
	header := good + ",v1=" + hex.EncodeToString(make([]byte, 32))

	if err := VerifySignature(payload, header, "whsec_test", 5*time.Minute, now); err != nil {
		t.Fatalf("one matching v1 among several rejected: %v", err)
	}
}
