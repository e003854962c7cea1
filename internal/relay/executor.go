// Package relay 把已签名的操作包装成 Owner 签名的链上交易并广播。
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"station-core/internal/action"
	"station-core/internal/calldata"
	"station-core/internal/errs"
	"station-core/internal/signer"
	"station-core/pkg/logger"
	"station-core/pkg/monitor"
)

// ChainClient 执行器用到的节点 RPC，*ethclient.Client 满足该接口
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	Station        common.Address
	ChainID        *big.Int // 为空时从节点查询
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Receipt 已上链且执行成功的交易
type Receipt struct {
	Kind            action.Kind
	TxHash          common.Hash
	BlockNumber     uint64
	GasUsed         uint64
	Fee             *big.Int // wei
	Logs            []*types.Log
	DeployedAccount common.Address // 仅 DeployAccount 有值
}

type Executor struct {
	client ChainClient
	owner  signer.Signer
	cfg    Config
	tracer trace.Tracer

	// 串行化 "取 pending nonce -> 签名 -> 广播"，避免同进程内外层交易 nonce 冲突
	sendMu sync.Mutex
}

func NewExecutor(ctx context.Context, client ChainClient, owner signer.Signer, cfg Config) (*Executor, error) {
	if cfg.ChainID == nil {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("查询 chainId 失败: %w", err)
		}
		cfg.ChainID = id
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Executor{
		client: client,
		owner:  owner,
		cfg:    cfg,
		tracer: otel.Tracer("station-core/relay"),
	}, nil
}

func (e *Executor) ChainID() *big.Int       { return new(big.Int).Set(e.cfg.ChainID) }
func (e *Executor) Station() common.Address { return e.cfg.Station }
func (e *Executor) Owner() common.Address   { return e.owner.Address() }

// Submit 模拟执行 -> Owner 签名外层交易 -> 广播 -> 在 ConfirmTimeout 内等待回执
//
// 返回的错误:
//   - errs.ErrEncoding: 参数无法编码，未广播
//   - *errs.RevertError: 模拟或上链执行失败
//   - *errs.PendingError: 已广播但未在时限内确认，需用 Lookup 回查，不可直接重发
//   - *errs.CreationEventError: 部署成功但回执中没有部署事件
func (e *Executor) Submit(ctx context.Context, req action.Request, sigs action.Signatures) (*Receipt, error) {
	ctx, span := e.tracer.Start(ctx, "relay.Submit", trace.WithAttributes(attribute.String("kind", req.Kind().String())))
	defer span.End()

	start := time.Now()
	rec, err := e.submit(ctx, req, sigs)
	outcome := outcomeOf(err)
	monitor.ObserveRelay(req.Kind().String(), outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.String("tx", rec.TxHash.Hex()))
	return rec, nil
}

func (e *Executor) submit(ctx context.Context, req action.Request, sigs action.Signatures) (*Receipt, error) {
	// 1. 编码
	data, err := calldata.Relay(req, sigs)
	if err != nil {
		return nil, err
	}

	// 2. 广播
	hash, err := e.send(ctx, data)
	if err != nil {
		return nil, err
	}
	logger.Info("中继交易已广播",
		zap.String("kind", req.Kind().String()),
		zap.String("tx", hash.Hex()),
	)

	// 3. 等待回执
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()
	return e.await(waitCtx, hash, req.Kind())
}

func (e *Executor) send(ctx context.Context, data []byte) (common.Hash, error) {
	owner := e.owner.Address()
	to := e.cfg.Station
	msg := ethereum.CallMsg{From: owner, To: &to, Data: data}

	gas, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return common.Hash{}, &errs.RevertError{Reason: reason}
		}
		return common.Hash{}, fmt.Errorf("估算 gas 失败: %w", err)
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	nonce, err := e.client.PendingNonceAt(ctx, owner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取 gas price 失败: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := e.owner.SignTx(tx, e.cfg.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		if reason, ok := revertReason(err); ok {
			return common.Hash{}, &errs.RevertError{Reason: reason}
		}
		return common.Hash{}, fmt.Errorf("广播交易失败: %w", err)
	}
	return signed.Hash(), nil
}

// Lookup 按交易哈希查询一次回执，未上链返回 *errs.PendingError
func (e *Executor) Lookup(ctx context.Context, hash common.Hash, kind action.Kind) (*Receipt, error) {
	raw, err := e.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, &errs.PendingError{TxHash: hash}
		}
		return nil, fmt.Errorf("查询回执失败: %w", err)
	}
	return e.interpret(ctx, raw, kind)
}

// await 轮询回执直到 ctx 结束
func (e *Executor) await(ctx context.Context, hash common.Hash, kind action.Kind) (*Receipt, error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		rec, err := e.Lookup(ctx, hash, kind)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, errs.ErrPendingOrUnknown) {
			if ctx.Err() != nil {
				return nil, &errs.PendingError{TxHash: hash}
			}
			var revert *errs.RevertError
			var missing *errs.CreationEventError
			if errors.As(err, &revert) || errors.As(err, &missing) {
				return nil, err
			}
			// 节点瞬时错误，继续轮询
			logger.Warn("查询回执失败，稍后重试", zap.String("tx", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, &errs.PendingError{TxHash: hash}
		case <-ticker.C:
		}
	}
}

func (e *Executor) interpret(ctx context.Context, raw *types.Receipt, kind action.Kind) (*Receipt, error) {
	if raw.Status != types.ReceiptStatusSuccessful {
		return nil, &errs.RevertError{TxHash: raw.TxHash, Reason: e.replayReason(ctx, raw)}
	}

	rec := &Receipt{
		Kind:    kind,
		TxHash:  raw.TxHash,
		GasUsed: raw.GasUsed,
		Logs:    raw.Logs,
		Fee:     new(big.Int),
	}
	if raw.BlockNumber != nil {
		rec.BlockNumber = raw.BlockNumber.Uint64()
	}
	if raw.EffectiveGasPrice != nil {
		rec.Fee.Mul(raw.EffectiveGasPrice, new(big.Int).SetUint64(raw.GasUsed))
	}

	if kind == action.KindDeployAccount {
		addr, err := DeployedAccount(raw)
		if err != nil {
			return nil, err
		}
		rec.DeployedAccount = addr
	}
	return rec, nil
}

// replayReason 在失败区块上重放交易以取回 revert 原因，取不到时返回空串
func (e *Executor) replayReason(ctx context.Context, raw *types.Receipt) string {
	if raw.BlockNumber == nil {
		return ""
	}
	// 回执里没有 calldata，需要取回原交易
	tx, _, err := e.client.TransactionByHash(ctx, raw.TxHash)
	if err != nil || tx.To() == nil {
		return ""
	}
	_, err = e.client.CallContract(ctx, ethereum.CallMsg{
		From: e.owner.Address(),
		To:   tx.To(),
		Gas:  tx.Gas(),
		Data: tx.Data(),
	}, raw.BlockNumber)
	if err == nil {
		return ""
	}
	reason, _ := revertReason(err)
	return reason
}

// Call 只读调用 (eth_call)
func (e *Executor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return e.client.CallContract(ctx, ethereum.CallMsg{From: e.owner.Address(), To: &to, Data: data}, nil)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, errs.ErrEncoding):
		return "encoding"
	case errors.Is(err, errs.ErrExecutionReverted):
		return "reverted"
	case errors.Is(err, errs.ErrPendingOrUnknown):
		return "pending"
	case errors.Is(err, errs.ErrCreationEventNotFound):
		return "no_event"
	default:
		return "error"
	}
}
