package relay

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-core/internal/action"
	"station-core/internal/calldata"
	"station-core/internal/errs"
	"station-core/internal/signer"
)

var (
	testChainID = big.NewInt(9990)
	testStation = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	testMachine = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// rpcRevert 模拟 ethclient 返回的带 data 的 revert 错误
type rpcRevert struct {
	msg  string
	data string
}

func (e *rpcRevert) Error() string          { return e.msg }
func (e *rpcRevert) ErrorData() interface{} { return e.data }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	typ, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: typ}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

type fakeChain struct {
	mu sync.Mutex

	estimateErr error
	sendErr     error
	callErr     error

	// mine 为空时交易永远不会上链
	mine     func(tx *types.Transaction) *types.Receipt
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{receipts: make(map[common.Hash]*types.Receipt)}
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) { return testChainID, nil }

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 210000, nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.mine != nil {
		f.receipts[tx.Hash()] = f.mine(tx)
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeChain) setReceipt(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
}

func successReceipt(logs ...*types.Log) func(tx *types.Transaction) *types.Receipt {
	return func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            tx.Hash(),
			BlockNumber:       big.NewInt(12),
			GasUsed:           21000,
			EffectiveGasPrice: big.NewInt(1_000_000_000),
			Logs:              logs,
		}
	}
}

func deployedLog(addr common.Address) *types.Log {
	return &types.Log{
		Address: testStation,
		Topics:  []common.Hash{MachineSmartAccountDeployedTopic, common.BytesToHash(addr.Bytes())},
	}
}

func newExecutor(t *testing.T, chain *fakeChain) (*Executor, *signer.LocalSigner) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := signer.NewLocalSigner(key, "owner")

	e, err := NewExecutor(context.Background(), chain, owner, Config{
		Station:        testStation,
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	return e, owner
}

func ownerSigs() action.Signatures {
	return action.Signatures{Owner: make([]byte, 65), Machine: make([]byte, 65)}
}

func TestSubmit_DeployConfirmed(t *testing.T) {
	chain := newFakeChain()
	chain.mine = successReceipt(deployedLog(testMachine))
	e, owner := newExecutor(t, chain)

	req := action.NewDeployAccount(common.HexToAddress("0x01"), big.NewInt(7))
	rec, err := e.Submit(context.Background(), req, ownerSigs())
	require.NoError(t, err)

	assert.Equal(t, testMachine, rec.DeployedAccount)
	assert.Equal(t, uint64(12), rec.BlockNumber)
	assert.Equal(t, "0.000021", rec.FeeEther().String())

	// 外层交易: Owner 签名、发往 Gas Station、携带编码后的调用数据
	require.Len(t, chain.sent, 1)
	tx := chain.sent[0]
	from, err := types.Sender(types.NewEIP155Signer(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, owner.Address(), from)
	assert.Equal(t, testStation, *tx.To())

	want, err := calldata.Relay(req, ownerSigs())
	require.NoError(t, err)
	assert.Equal(t, want, tx.Data())
}

func TestSubmit_DeployWithoutEvent(t *testing.T) {
	chain := newFakeChain()
	chain.mine = successReceipt()
	e, _ := newExecutor(t, chain)

	_, err := e.Submit(context.Background(), action.NewDeployAccount(common.HexToAddress("0x01"), big.NewInt(1)), ownerSigs())
	assert.ErrorIs(t, err, errs.ErrCreationEventNotFound)
}

func TestSubmit_EncodingErrorIsNotBroadcast(t *testing.T) {
	chain := newFakeChain()
	e, _ := newExecutor(t, chain)

	_, err := e.Submit(context.Background(),
		action.NewExecuteGeneric(testMachine, nil, big.NewInt(1)),
		action.Signatures{Owner: make([]byte, 64)},
	)
	assert.ErrorIs(t, err, errs.ErrEncoding)
	assert.True(t, errs.Retryable(err))
	assert.Empty(t, chain.sent)
}

func TestSubmit_SimulationReverts(t *testing.T) {
	chain := newFakeChain()
	chain.estimateErr = &rpcRevert{msg: "execution reverted: bad nonce", data: revertData(t, "bad nonce")}
	e, _ := newExecutor(t, chain)

	_, err := e.Submit(context.Background(), action.NewExecuteGeneric(testMachine, []byte{1}, big.NewInt(1)), ownerSigs())
	var revert *errs.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "bad nonce", revert.Reason)
	assert.Equal(t, common.Hash{}, revert.TxHash)
	assert.Empty(t, chain.sent)
}

func TestSubmit_EstimateTransportError(t *testing.T) {
	chain := newFakeChain()
	chain.estimateErr = errors.New("connection refused")
	e, _ := newExecutor(t, chain)

	_, err := e.Submit(context.Background(), action.NewExecuteGeneric(testMachine, nil, big.NewInt(1)), ownerSigs())
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrExecutionReverted))
	assert.False(t, errs.Retryable(err))
}

func TestSubmit_RevertedOnChain(t *testing.T) {
	chain := newFakeChain()
	chain.mine = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: tx.Hash(), BlockNumber: big.NewInt(3)}
	}
	chain.callErr = &rpcRevert{msg: "execution reverted", data: revertData(t, "not owner")}
	e, _ := newExecutor(t, chain)

	_, err := e.Submit(context.Background(), action.NewTransferStationBalance(testMachine, big.NewInt(1)), ownerSigs())
	var revert *errs.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "not owner", revert.Reason)
	assert.Equal(t, chain.sent[0].Hash(), revert.TxHash)
}

func TestSubmit_PendingThenLookup(t *testing.T) {
	chain := newFakeChain()
	e, _ := newExecutor(t, chain)

	req := action.NewExecuteAsAccount(testMachine, testStation, []byte{0xab}, big.NewInt(1))
	_, err := e.Submit(context.Background(), req, ownerSigs())
	require.ErrorIs(t, err, errs.ErrPendingOrUnknown)
	assert.False(t, errs.Retryable(err))

	hash, ok := errs.PendingHash(err)
	require.True(t, ok)
	assert.Equal(t, chain.sent[0].Hash(), hash)

	// 仍未上链
	_, err = e.Lookup(context.Background(), hash, req.Kind())
	assert.ErrorIs(t, err, errs.ErrPendingOrUnknown)

	chain.setReceipt(hash, successReceipt()(chain.sent[0]))
	rec, err := e.Lookup(context.Background(), hash, req.Kind())
	require.NoError(t, err)
	assert.Equal(t, hash, rec.TxHash)
}

func TestSubmit_CanceledContextReportsPending(t *testing.T) {
	chain := newFakeChain()
	e, _ := newExecutor(t, chain)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Submit(ctx, action.NewExecuteGeneric(testMachine, nil, big.NewInt(1)), ownerSigs())
	assert.ErrorIs(t, err, errs.ErrPendingOrUnknown)
}

func TestSubmit_ConcurrentOuterNonces(t *testing.T) {
	chain := newFakeChain()
	chain.mine = successReceipt()
	e, _ := newExecutor(t, chain)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.Submit(context.Background(), action.NewExecuteGeneric(testMachine, nil, big.NewInt(int64(i))), ownerSigs())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, tx := range chain.sent {
		assert.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	assert.Len(t, seen, n)
}

func TestDeployedAccount(t *testing.T) {
	// 非 indexed 形式
	data := common.LeftPadBytes(testMachine.Bytes(), 32)
	r := &types.Receipt{Logs: []*types.Log{
		{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Other()"))}},
		{Topics: []common.Hash{MachineSmartAccountDeployedTopic}, Data: data},
	}}
	addr, err := DeployedAccount(r)
	require.NoError(t, err)
	assert.Equal(t, testMachine, addr)

	_, err = DeployedAccount(&types.Receipt{})
	assert.ErrorIs(t, err, errs.ErrCreationEventNotFound)
}

func TestRevertReason(t *testing.T) {
	reason, ok := revertReason(errors.New("execution reverted: paused"))
	assert.True(t, ok)
	assert.Equal(t, "paused", reason)

	_, ok = revertReason(errors.New("insufficient funds for gas * price + value"))
	assert.False(t, ok)
}
