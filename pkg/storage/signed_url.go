package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tokenScope is bound into every signature so an export token cannot be
// replayed against anything else signed with the same secret.
const tokenScope = "export"

// Sentinel errors for token validation. Callers that need to tell a stale
// link from a forged one match with errors.Is.
var (
	ErrTokenExpired = errors.New("download token expired")
	ErrTokenInvalid = errors.New("download token invalid")
)

// SignedURLSigner mints and validates the download tokens that authenticate
// the public export route in place of a JWT.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner builds a signer. A non-positive TTL falls back to a day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate mints a token of the form jobID.expiry.path.signature. The job id
// stays readable on purpose; the signature is what gates access.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("job id and file path are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	signature := s.sign(jobID, ts, encodedPath)
	token := strings.Join([]string{jobID, ts, encodedPath, signature}, ".")
	return token, expiresAt, nil
}

// Parse checks a token and returns the job id, file path, and expiry it
// carries. The signature covers the raw encoded segments, so verification
// runs before anything inside the token is decoded. allowExpired lets
// cleanup recover the file path from a token past its window.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 || parts[0] == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: want id.expiry.path.signature", ErrTokenInvalid)
	}
	jobID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(jobID, ts, encodedPath)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("%w: signature mismatch", ErrTokenInvalid)
	}

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: bad expiry", ErrTokenInvalid)
	}
	expiresAt = time.Unix(expUnix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, ErrTokenExpired
	}

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: undecodable path", ErrTokenInvalid)
	}
	return jobID, string(rawPath), expiresAt, nil
}

func (s *SignedURLSigner) sign(jobID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%s", tokenScope, jobID, ts, encodedPath)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
