package audit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// sealMethod is stored alongside every envelope so old records stay
// readable if the scheme ever changes.
const sealMethod = "AES-256-GCM"

// Envelope is a sealed payload: base64 ciphertext, base64 nonce and the
// method used. It serialises to JSON for storage.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Method     string `json:"method"`
}

// Sealer encrypts sensitive audit payloads with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a hex-encoded 32-byte key (64 hex chars).
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("audit sealer: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("audit sealer: key is %d bytes, want 32", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("audit sealer: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("audit sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext string) (Envelope, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("audit sealer: nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Method:     sealMethod,
	}, nil
}

// Open decrypts an envelope. Tampered ciphertext or a wrong key fail
// authentication and return an error.
func (s *Sealer) Open(env Envelope) (string, error) {
	if env.Method != sealMethod {
		return "", fmt.Errorf("audit sealer: unsupported method %q", env.Method)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("audit sealer: decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("audit sealer: decode nonce: %w", err)
	}
	if len(nonce) != s.aead.NonceSize() {
		return "", errors.New("audit sealer: bad nonce length")
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("audit sealer: open: %w", err)
	}
	return string(plaintext), nil
}
