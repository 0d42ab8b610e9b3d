package session

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize length of the vault master key.
const KeySize = chacha20poly1305.KeySize

var vaultSalt = []byte("exgate/credential-vault/v1")

// ErrDecrypt is returned when a blob cannot be opened with the vault key.
var ErrDecrypt = errors.New("credential blob cannot be decrypted")

// Vault seals credentials with XChaCha20-Poly1305. The exchange id is bound as
// associated data, so a blob copied to another exchange key does not open.
type Vault struct {
	aead cipher.AEAD
}

func NewVault(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "init vault cipher")
	}
	return &Vault{aead: aead}, nil
}

// Seal serializes and encrypts the credential into a base64 blob.
func (v *Vault) Seal(exchangeID string, cred domain.Credential) (string, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return "", errors.Wrap(err, "marshal credential")
	}

	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plain)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}
	sealed := v.aead.Seal(nonce, nonce, plain, []byte(exchangeID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a blob produced by Seal.
func (v *Vault) Open(exchangeID, blob string) (domain.Credential, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return domain.Credential{}, errors.Wrap(ErrDecrypt, "decode base64")
	}
	if len(raw) < v.aead.NonceSize()+v.aead.Overhead() {
		return domain.Credential{}, errors.Wrap(ErrDecrypt, "blob too short")
	}

	nonce, ciphertext := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, ciphertext, []byte(exchangeID))
	if err != nil {
		return domain.Credential{}, errors.Wrap(ErrDecrypt, err.Error())
	}

	var cred domain.Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return domain.Credential{}, errors.Wrap(ErrDecrypt, "decode credential")
	}
	return cred, nil
}

// ParseKey accepts a 32-byte key as hex (optionally 0x-prefixed) or base64. Any other
// non-empty input is treated as a passphrase and stretched with argon2id.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("vault key is empty")
	}

	rawHex := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(rawHex) == hex.EncodedLen(KeySize) {
		if b, err := hex.DecodeString(rawHex); err == nil {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == KeySize {
		return b, nil
	}

	return DeriveKey(raw), nil
}

// DeriveKey stretches a passphrase into a vault key.
func DeriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), vaultSalt, 1, 64*1024, 4, KeySize)
}
