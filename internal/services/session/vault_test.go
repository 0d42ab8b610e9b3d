package session

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/exgate/internal/domain"
)

func TestVault_SealOpen(t *testing.T) {
	v, err := NewVault(DeriveKey("correct horse"))
	require.NoError(t, err)

	cred := domain.Credential{APIKey: "key", Secret: "secret", Passphrase: "pp"}
	blob, err := v.Seal("binance", cred)
	require.NoError(t, err)
	assert.NotContains(t, blob, "secret")

	got, err := v.Open("binance", blob)
	require.NoError(t, err)
	assert.Equal(t, cred, got)

	again, err := v.Seal("binance", cred)
	require.NoError(t, err)
	assert.NotEqual(t, blob, again, "nonce is random")
}

func TestVault_OpenFailures(t *testing.T) {
	v, err := NewVault(DeriveKey("k1"))
	require.NoError(t, err)
	other, err := NewVault(DeriveKey("k2"))
	require.NoError(t, err)

	blob, err := v.Seal("binance", domain.Credential{APIKey: "a", Secret: "b"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		vault    *Vault
		exchange string
		blob     string
	}{
		{name: "wrong key", vault: other, exchange: "binance", blob: blob},
		{name: "wrong exchange", vault: v, exchange: "bybit", blob: blob},
		{name: "not base64", vault: v, exchange: "binance", blob: "%%%"},
		{name: "too short", vault: v, exchange: "binance", blob: base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.vault.Open(tt.exchange, tt.blob)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, KeySize)
	for i := range raw {
		raw[i] = byte(i + 1)
	}

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{name: "hex", input: hex.EncodeToString(raw), want: raw},
		{name: "prefixed hex", input: "0x" + hex.EncodeToString(raw), want: raw},
		{name: "base64", input: base64.StdEncoding.EncodeToString(raw), want: raw},
		{name: "passphrase", input: "my vault passphrase", want: DeriveKey("my vault passphrase")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, KeySize)
		})
	}

	_, err := ParseKey("   ")
	assert.Error(t, err)

	_, err = NewVault([]byte(strings.Repeat("x", 16)))
	assert.Error(t, err)
}
