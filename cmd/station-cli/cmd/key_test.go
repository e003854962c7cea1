package cmd

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-core/pkg/hdwallet"
)

func TestParseSecret(t *testing.T) {
	// hardhat 默认账户 #0
	const hexKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	const want = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	tests := []struct {
		name   string
		secret string
	}{
		{"hex", hexKey},
		{"0x 前缀", "0x" + hexKey},
		{"首尾空白", "  " + hexKey + "\n"},
		{"助记词", "test test test test test test test test test test test junk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := parseSecret(tt.secret, hdwallet.DefaultPath)
			require.NoError(t, err)
			assert.Equal(t, want, crypto.PubkeyToAddress(key.PublicKey).Hex())
		})
	}

	_, err := parseSecret("zz", hdwallet.DefaultPath)
	assert.Error(t, err)
}
