// Package qrcode turns random token material into the barcode strings printed
// on member cards and back again.  Nothing here touches the database; the
// functions are pure apart from the random source used by GenerateSecret.
package qrcode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"regexp"
	"strings"
)

// Alphabet is the RFC 4648 base-32 alphabet (no 0, 1, 8 or 9).
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

const (
	DefaultSecretBytes = 16
	DefaultPrefix      = "TJ1"
)

var tokenPattern = regexp.MustCompile(`^[A-Z2-7]+$`)

// Codec generates, encodes and parses scan tokens for one program prefix.
type Codec struct {
	prefix      string
	secretBytes int
	rand        io.Reader
}

// New returns a Codec.  An empty prefix or a non-positive byte length falls
// back to the defaults.  The prefix is normalised to upper case because
// ParseBarcode upper-cases its input before comparing.
func New(prefix string, secretBytes int) *Codec {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if secretBytes <= 0 {
		secretBytes = DefaultSecretBytes
	}
	return &Codec{prefix: prefix, secretBytes: secretBytes, rand: rand.Reader}
}

// WithRand returns a copy of the codec reading secrets from r.
func (c *Codec) WithRand(r io.Reader) *Codec {
	cp := *c
	cp.rand = r
	return &cp
}

func (c *Codec) Prefix() string   { return c.prefix }
func (c *Codec) SecretBytes() int { return c.secretBytes }

// GenerateSecret reads SecretBytes fresh random bytes.
func (c *Codec) GenerateSecret() ([]byte, error) {
	b := make([]byte, c.secretBytes)
	if _, err := io.ReadFull(c.rand, b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeSecret maps raw bytes onto Alphabet, five bits per character, most
// significant bit first.  The final character is zero-padded; no '='.
func EncodeSecret(secret []byte) string {
	var (
		sb    strings.Builder
		value uint32
		bits  uint
	)
	sb.Grow((len(secret)*8 + 4) / 5)
	for _, b := range secret {
		value = value<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			sb.WriteByte(Alphabet[(value>>(bits-5))&31])
			bits -= 5
		}
	}
	if bits > 0 {
		sb.WriteByte(Alphabet[(value<<(5-bits))&31])
	}
	return sb.String()
}

// NewToken generates a secret and returns its encoded form.
func (c *Codec) NewToken() (string, error) {
	secret, err := c.GenerateSecret()
	if err != nil {
		return "", err
	}
	return EncodeSecret(secret), nil
}

// FormatBarcode builds "<PREFIX>-<TOKEN>-<YYYYMM>".
func (c *Codec) FormatBarcode(token, yearMonth string) string {
	return c.prefix + "-" + token + "-" + yearMonth
}

// ParseBarcode extracts the token segment from scanner input.  The boolean is
// false for anything that is not a well-formed barcode of this program.
func (c *Codec) ParseBarcode(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, c.prefix+"-") {
		return "", false
	}
	parts := make([]string, 0, 3)
	for _, p := range strings.Split(s, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", false
	}
	token := parts[1]
	if !tokenPattern.MatchString(token) {
		return "", false
	}
	return token, true
}

// Hash returns the hex SHA-256 of a token value.  Only this digest is used
// for lookups.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
