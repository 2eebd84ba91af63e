package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds the age of a timestamped signature.
const DefaultTolerance = 30 * time.Minute

// SignatureHeaders are checked in order; the first non-empty one is used.
var SignatureHeaders = []string{
	"xi-signature",
	"elevenlabs-signature",
	"x-elevenlabs-signature",
	"signature",
}

var (
	ErrMissingSecret      = errors.New("webhook: secret not configured")
	ErrMissingSignature   = errors.New("webhook: signature header missing")
	ErrMalformedSignature = errors.New("webhook: malformed signature header")
	ErrSignatureMismatch  = errors.New("webhook: signature mismatch")
	ErrStaleSignature     = errors.New("webhook: signature timestamp outside tolerance")
)

// SignatureFromHeaders returns the first signature header present.
func SignatureFromHeaders(h http.Header) string {
	for _, name := range SignatureHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// VerifySignature checks header against an HMAC-SHA256 of body.
//
// Two header formats are accepted:
//   - a bare hex digest of body
//   - "t=<unix>,v0=<hex>" where the digest covers "<unix>.<body>"; the
//     timestamp must be within tolerance of now
//
// ErrMalformedSignature means the header shape is unusable. ErrMissingSecret,
// ErrMissingSignature, ErrSignatureMismatch and ErrStaleSignature mean the
// request is not authentic.
func VerifySignature(header string, body []byte, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	if !strings.Contains(header, "=") {
		got, err := decodeDigest(header)
		if err != nil {
			return err
		}
		if !hmac.Equal(got, sign(secret, body)) {
			return ErrSignatureMismatch
		}
		return nil
	}

	ts, digest, err := parseStructured(header)
	if err != nil {
		return err
	}
	got, err := decodeDigest(digest)
	if err != nil {
		return err
	}

	payload := make([]byte, 0, len(ts)+1+len(body))
	payload = append(payload, ts...)
	payload = append(payload, '.')
	payload = append(payload, body...)
	if !hmac.Equal(got, sign(secret, payload)) {
		return ErrSignatureMismatch
	}

	if tolerance > 0 {
		sec, _ := strconv.ParseInt(ts, 10, 64)
		age := now.Sub(time.Unix(sec, 0))
		if age > tolerance || age < -tolerance {
			return ErrStaleSignature
		}
	}
	return nil
}

// Sign renders the bare hex signature of body.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(sign(secret, body))
}

// SignStructured renders a "t=<unix>,v0=<hex>" header for body at ts.
func SignStructured(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	payload := append([]byte(t+"."), body...)
	return "t=" + t + ",v0=" + hex.EncodeToString(sign(secret, payload))
}

func sign(secret string, data []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return mac.Sum(nil)
}

func parseStructured(header string) (ts, digest string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return "", "", ErrMalformedSignature
		}
		switch k {
		case "t":
			ts = v
		case "v0":
			digest = v
		}
	}
	if ts == "" || digest == "" {
		return "", "", ErrMalformedSignature
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return "", "", ErrMalformedSignature
	}
	return ts, digest, nil
}

func decodeDigest(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil || len(b) != sha256.Size {
		return nil, ErrMalformedSignature
	}
	return b, nil
}
