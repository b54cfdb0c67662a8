package fileproxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// ErrMissingSecret indicates the proxy was configured without a signing secret.
var ErrMissingSecret = errors.New("fileproxy: secret is required")

// Signer produces and verifies HMAC-SHA256 signatures over bare
// filenames. The same signature is valid in hex or unpadded URL-safe
// base64, matching what the different callers of the proxy send.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer. An empty secret is a configuration
// error, not a soft failure.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

func (s *Signer) sum(name string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(name))
	return mac.Sum(nil)
}

// SignHex returns the hex encoding of the filename's signature.
func (s *Signer) SignHex(name string) string {
	return hex.EncodeToString(s.sum(name))
}

// SignBase64 returns the unpadded URL-safe base64 encoding of the
// filename's signature.
func (s *Signer) SignBase64(name string) string {
	return base64.RawURLEncoding.EncodeToString(s.sum(name))
}

// Verify reports whether sig is a valid signature for name in either
// supported encoding. Comparison is constant-time.
func (s *Signer) Verify(name, sig string) bool {
	if name == "" || sig == "" {
		return false
	}
	sum := s.sum(name)
	if hmac.Equal([]byte(hex.EncodeToString(sum)), []byte(sig)) {
		return true
	}
	return hmac.Equal([]byte(base64.RawURLEncoding.EncodeToString(sum)), []byte(sig))
}

// SignedURL builds the absolute download URL for a stored filename.
func (s *Signer) SignedURL(baseURL, name string) string {
	q := url.Values{}
	q.Set("name", name)
	q.Set("sig", s.SignHex(name))
	return strings.TrimRight(baseURL, "/") + "/v1/files?" + q.Encode()
}
