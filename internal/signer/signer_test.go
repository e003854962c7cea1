package signer

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-core/internal/action"
	"station-core/internal/typeddata"
	"station-core/pkg/config"
)

// hardhat 默认账户 #0
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestFromHex(t *testing.T) {
	s, err := FromHex("0x"+testKey, "owner")
	require.NoError(t, err)
	assert.Equal(t, testAddr, s.Address())

	_, err = FromHex("zz", "owner")
	assert.Error(t, err)
}

func TestString_DoesNotLeakKey(t *testing.T) {
	s, _ := FromHex(testKey, "owner")
	out := fmt.Sprintf("%v %s", s, s)
	assert.False(t, strings.Contains(out, testKey))
	assert.Contains(t, out, testAddr.Hex())
}

func TestSignTypedData_Recoverable(t *testing.T) {
	s, _ := FromHex(testKey, "owner")
	msg, err := typeddata.Owner(
		action.NewDeployAccount(common.HexToAddress("0x01"), big.NewInt(1)),
		typeddata.FactoryDomain(big.NewInt(9990), common.HexToAddress("0x02")),
	)
	require.NoError(t, err)

	sig, err := s.SignTypedData(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)

	digest, _ := msg.Digest()
	norm := append([]byte{}, sig...)
	norm[64] -= 27
	pub, err := crypto.SigToPub(digest, norm)
	require.NoError(t, err)
	assert.Equal(t, testAddr, crypto.PubkeyToAddress(*pub))
}

func TestSignText_Recoverable(t *testing.T) {
	s, _ := FromHex(testKey, "machine")
	sig, err := s.SignText([]byte("did:peaq:0xabc"))
	require.NoError(t, err)

	norm := append([]byte{}, sig...)
	norm[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("did:peaq:0xabc")), norm)
	require.NoError(t, err)
	assert.Equal(t, testAddr, crypto.PubkeyToAddress(*pub))
}

func TestSignTx(t *testing.T) {
	s, _ := FromHex(testKey, "owner")
	chainID := big.NewInt(9990)
	tx := types.NewTransaction(3, common.HexToAddress("0x02"), big.NewInt(0), 21000, big.NewInt(1), nil)

	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.NewEIP155Signer(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, testAddr, from)
}

func TestOwnerFromConfig(t *testing.T) {
	s, err := OwnerFromConfig(config.ChainConfig{
		OwnerMnemonic:       "test test test test test test test test test test test junk",
		OwnerDerivationPath: "m/44'/60'/0'/0/0",
	})
	require.NoError(t, err)
	assert.Equal(t, testAddr, s.Address())

	_, err = OwnerFromConfig(config.ChainConfig{})
	assert.ErrorIs(t, err, ErrNoKeySource)
}
