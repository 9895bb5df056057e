package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedTokenPrefix = "enc:v1:"

var ErrTokenKeyMissing = errors.New("account token encryption key is not configured")

// TokenCipher encrypts provider tokens before they are written to the
// account table. A nil *TokenCipher stores tokens as given.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher parses a 32 byte key given raw, as hex or as base64.
// An empty key yields a nil cipher.
func NewTokenCipher(raw string) (*TokenCipher, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	key, err := parseTokenKey(trimmed)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{key: key}, nil
}

func parseTokenKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(raw); err == nil && len(decoded) == 32 {
			return decoded, nil
		}
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("ACCOUNT_TOKEN_KEY must be 32-byte raw, 64-char hex, or base64")
}

func (c *TokenCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *TokenCipher) Encrypt(value string) (string, error) {
	if c == nil {
		return "", ErrTokenKeyMissing
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	payload := gcm.Seal(nonce, nonce, []byte(value), nil)
	return sealedTokenPrefix + base64.RawStdEncoding.EncodeToString(payload), nil
}

// Seal encrypts the token fields of p in place.
func (c *TokenCipher) Seal(p *LinkAccountParams) error {
	if c == nil {
		return nil
	}
	for _, field := range []**string{&p.AccessToken, &p.RefreshToken, &p.IDToken} {
		if *field == nil {
			continue
		}
		sealed, err := c.Encrypt(**field)
		if err != nil {
			return err
		}
		*field = &sealed
	}
	return nil
}
