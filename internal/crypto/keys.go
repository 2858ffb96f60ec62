package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyPEMType = "CHEMVIZ SEAL KEY"
	keySize    = 32
	nonceSize  = 24
)

// SealKey is the symmetric key protecting values written to the local store.
type SealKey struct {
	key [keySize]byte
}

// LoadOrGenerate loads the key at path, or generates and saves a new one
// (mode 0600) if none exists.
func LoadOrGenerate(path string) (*SealKey, error) {
	if _, err := os.Stat(path); err == nil {
		return loadKey(path)
	}
	return generateAndSave(path)
}

// NewSealKey wraps raw key material. It is used by tests and by callers that
// keep the key somewhere other than a file.
func NewSealKey(raw []byte) (*SealKey, error) {
	if len(raw) != keySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", keySize, len(raw))
	}
	k := &SealKey{}
	copy(k.key[:], raw)
	return k, nil
}

// Seal encrypts plaintext and returns base64(nonce || box).
func (k *SealKey) Seal(plaintext []byte) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], plaintext, &nonce, &k.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (k *SealKey) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed value too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &k.key)
	if !ok {
		return nil, errors.New("sealed value failed authentication")
	}
	return plain, nil
}

func loadKey(path string) (*SealKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seal key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != keyPEMType {
		return nil, errors.New("invalid seal key PEM format")
	}
	return NewSealKey(block.Bytes)
}

func generateAndSave(path string) (*SealKey, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	raw := make([]byte, keySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate seal key: %w", err)
	}

	block := &pem.Block{Type: keyPEMType, Bytes: raw}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("write seal key: %w", err)
	}
	return NewSealKey(raw)
}
