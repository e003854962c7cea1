package typeddata

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-core/internal/action"
	"station-core/internal/errs"
)

var (
	chainID = big.NewInt(9990)
	station = common.HexToAddress("0x5555555555555555555555555555555555555555")
	actor   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	machine = common.HexToAddress("0x2222222222222222222222222222222222222222")
	target  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func word(v *big.Int) []byte { return math.U256Bytes(new(big.Int).Set(v)) }

func addrWord(a common.Address) []byte { return common.LeftPadBytes(a.Bytes(), 32) }

// 按 EIP-712 规则手工计算，校验 apitypes 的结果
func TestDigest_DeployMatchesManualEncoding(t *testing.T) {
	nonce := big.NewInt(123456)
	msg, err := Owner(action.NewDeployAccount(actor, nonce), FactoryDomain(chainID, station))
	require.NoError(t, err)

	got, err := msg.Digest()
	require.NoError(t, err)

	domainType := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domainSep := crypto.Keccak256(bytes.Join([][]byte{
		domainType,
		crypto.Keccak256([]byte(FactoryDomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		word(chainID),
		addrWord(station),
	}, nil))

	structType := crypto.Keccak256([]byte("DeployMachineSmartAccount(address machineOwner,uint256 nonce)"))
	structHash := crypto.Keccak256(bytes.Join([][]byte{structType, addrWord(actor), word(nonce)}, nil))

	want := crypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
	assert.Equal(t, want, got)
}

func TestDigest_ExecuteBytesField(t *testing.T) {
	data := []byte{0xca, 0xfe}
	nonce := big.NewInt(5)
	msg, err := Machine(action.NewExecuteAsAccount(machine, target, data, nonce), AccountDomain(chainID, machine))
	require.NoError(t, err)
	assert.Equal(t, "Execute", msg.PrimaryType())

	got, err := msg.Digest()
	require.NoError(t, err)

	domainType := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	domainSep := crypto.Keccak256(domainType,
		crypto.Keccak256([]byte(AccountDomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		word(chainID),
		addrWord(machine))
	structType := crypto.Keccak256([]byte("Execute(address target,bytes data,uint256 nonce)"))
	structHash := crypto.Keccak256(structType, addrWord(target), crypto.Keccak256(data), word(nonce))

	assert.Equal(t, crypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash), got)
}

func TestDigest_DomainSeparation(t *testing.T) {
	req := action.NewExecuteAsAccount(machine, target, []byte{1}, big.NewInt(1))

	tests := []struct {
		name string
		d    Domain
	}{
		{"不同 verifyingContract", FactoryDomain(chainID, machine)},
		{"不同 chainId", FactoryDomain(big.NewInt(3338), station)},
		{"不同域名", Domain{Name: AccountDomainName, Version: DomainVersion, ChainID: chainID, VerifyingContract: station}},
	}

	base, err := Owner(req, FactoryDomain(chainID, station))
	require.NoError(t, err)
	baseDigest, err := base.Digest()
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Owner(req, tt.d)
			require.NoError(t, err)
			d, err := m.Digest()
			require.NoError(t, err)
			assert.NotEqual(t, baseDigest, d)
		})
	}
}

func TestOwner_AllKinds(t *testing.T) {
	d := FactoryDomain(chainID, station)
	sig := bytes.Repeat([]byte{1}, 65)
	reqs := map[string]action.Request{
		"DeployMachineSmartAccount":       action.NewDeployAccount(actor, big.NewInt(1)),
		"TransferMachineStationBalance":   action.NewTransferStationBalance(actor, big.NewInt(1)),
		"ExecuteTransaction":              action.NewExecuteGeneric(target, []byte{1}, big.NewInt(1)),
		"ExecuteMachineTransaction":       action.NewExecuteAsAccount(machine, target, []byte{1}, big.NewInt(1)),
		"ExecuteMachineTransferBalance":   action.NewTransferAccountBalance(machine, actor, big.NewInt(1)),
		"ExecuteMachineBatchTransactions": action.NewExecuteBatch([]action.BatchEntry{{Machine: machine, Target: target, Data: []byte{1}, Nonce: big.NewInt(2), MachineSignature: sig}}, big.NewInt(1)),
	}

	for primary, req := range reqs {
		t.Run(primary, func(t *testing.T) {
			m, err := Owner(req, d)
			require.NoError(t, err)
			assert.Equal(t, primary, m.PrimaryType())
			digest, err := m.Digest()
			require.NoError(t, err)
			assert.Len(t, digest, 32)
		})
	}
}

func TestMachine_UnsupportedKind(t *testing.T) {
	_, err := Machine(action.NewDeployAccount(actor, big.NewInt(1)), AccountDomain(chainID, machine))
	assert.ErrorIs(t, err, errs.ErrEncoding)

	_, err = Owner(action.NewDeployAccount(actor, nil), FactoryDomain(chainID, station))
	assert.ErrorIs(t, err, errs.ErrEncoding)
}

func TestJSONRoundTrip(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200) // 超过 float64 精度
	m, err := Owner(action.NewExecuteGeneric(target, []byte{9, 9}, huge), FactoryDomain(chainID, station))
	require.NoError(t, err)

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	back, err := FromJSON(raw)
	require.NoError(t, err)

	d1, err := m.Digest()
	require.NoError(t, err)
	d2, err := back.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	_, err = FromJSON([]byte(`{"types":{}}`))
	assert.ErrorIs(t, err, errs.ErrEncoding)
}
