package station

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"station-core/internal/action"
	"station-core/internal/errs"
	"station-core/internal/model"
	"station-core/internal/relay"
	"station-core/internal/store"
	"station-core/internal/typeddata"
	"station-core/internal/verify"
	"station-core/pkg/logger"
)

// ExecuteGeneric 执行 Owner 单签的调用
func (s *Service) ExecuteGeneric(ctx context.Context, target common.Address, data []byte, n *big.Int, ownerSig []byte) (*relay.Receipt, error) {
	req := action.NewExecuteGeneric(target, data, n)
	if err := s.checkOwner(req, ownerSig); err != nil {
		return nil, err
	}
	return s.submit(ctx, req, action.Signatures{Owner: ownerSig})
}

// ExecuteAccountTx 执行智能账户调用
func (s *Service) ExecuteAccountTx(ctx context.Context, machine, target common.Address, data []byte, n *big.Int, ownerSig, machineSig []byte) (*relay.Receipt, error) {
	req := action.NewExecuteAsAccount(machine, target, data, n)
	if err := s.checkOwner(req, ownerSig); err != nil {
		return nil, err
	}
	if err := s.checkMachine(ctx, req, machine, machineSig); err != nil {
		return nil, err
	}
	return s.submit(ctx, req, action.Signatures{Owner: ownerSig, Machine: machineSig})
}

// ExecuteBatch 一次代付多个智能账户调用，外层 nonce 与 Owner 签名由服务端生成
func (s *Service) ExecuteBatch(ctx context.Context, entries []action.BatchEntry) (*relay.Receipt, error) {
	if len(entries) == 0 {
		return nil, errs.Encodingf("batch has no entries")
	}
	for i, e := range entries {
		entry := action.NewExecuteAsAccount(e.Machine, e.Target, e.Data, e.Nonce)
		if err := s.checkMachine(ctx, entry, e.Machine, e.MachineSignature); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	n, err := s.nextNonce(ctx, s.ownerDomain())
	if err != nil {
		return nil, err
	}
	req := action.NewExecuteBatch(entries, n)
	ownerSig, err := s.signOwner(req)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, req, action.Signatures{Owner: ownerSig})
}

// ExecuteAccountTransfer 执行已签名的智能账户余额转出
func (s *Service) ExecuteAccountTransfer(ctx context.Context, machine, recipient common.Address, n *big.Int, ownerSig, machineSig []byte) (*relay.Receipt, error) {
	req := action.NewTransferAccountBalance(machine, recipient, n)
	if err := s.checkOwner(req, ownerSig); err != nil {
		return nil, err
	}
	if err := s.checkMachine(ctx, req, machine, machineSig); err != nil {
		return nil, err
	}
	return s.submit(ctx, req, action.Signatures{Owner: ownerSig, Machine: machineSig})
}

// TransferAccountBalance 准备并立即执行余额转出，需要本地持有设备私钥
func (s *Service) TransferAccountBalance(ctx context.Context, machine, recipient common.Address) (*relay.Receipt, error) {
	if s.machine == nil {
		return nil, ErrNoMachineSigner
	}
	p, err := s.PrepareAccountTransfer(ctx, machine, recipient)
	if err != nil {
		return nil, err
	}
	return s.ExecuteAccountTransfer(ctx, machine, recipient, p.Nonce, p.OwnerSignature, p.MachineSignature)
}

// checkOwner 提交前校验 Owner 签名，避免为必然 revert 的交易付 gas
func (s *Service) checkOwner(req action.Request, sig []byte) error {
	msg, err := typeddata.Owner(req, s.factoryDomain())
	if err != nil {
		return err
	}
	if r := verify.Typed(msg, sig, s.owner.Address()); !r.OK() {
		return fmt.Errorf("owner signature: %w", r.Err())
	}
	return nil
}

// checkMachine 智能账户已登记时，设备签名必须来自登记的 actor
func (s *Service) checkMachine(ctx context.Context, req action.Request, machine common.Address, sig []byte) error {
	if len(sig) == 0 {
		return ErrNoMachineSigner
	}
	reg, err := s.registry.FindByMachine(ctx, machine)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	msg, err := typeddata.Machine(req, s.accountDomain(machine))
	if err != nil {
		return err
	}
	if r := verify.Typed(msg, sig, common.HexToAddress(reg.Actor)); !r.OK() {
		return fmt.Errorf("machine signature: %w", r.Err())
	}
	return nil
}

// Reconcile 按哈希回查一笔交易，并把结果写回登记与未决记录
func (s *Service) Reconcile(ctx context.Context, hash common.Hash) (*relay.Receipt, error) {
	kind := action.KindExecuteGeneric
	var actor common.Address

	p, err := s.registry.FindPending(ctx, hash)
	switch {
	case err == nil:
		if k, ok := action.ParseKind(p.Kind); ok {
			kind = k
		}
		if p.Actor != "" {
			actor = common.HexToAddress(p.Actor)
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	rec, err := s.relayer.Lookup(ctx, hash, kind)
	if p != nil {
		s.settle(ctx, p, actor, rec, err)
	}
	return rec, err
}

// ReconcilePending 回查一批未决交易，返回已得到终态的数量
func (s *Service) ReconcilePending(ctx context.Context, limit int) (int, error) {
	list, err := s.registry.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range list {
		_, err := s.Reconcile(ctx, common.HexToHash(p.TxHash))
		if err == nil || errors.Is(err, errs.ErrExecutionReverted) || errors.Is(err, errs.ErrCreationEventNotFound) {
			settled++
		}
	}
	s.refreshPendingGauge(ctx)
	return settled, nil
}

func (s *Service) settle(ctx context.Context, p *model.PendingTransaction, actor common.Address, rec *relay.Receipt, err error) {
	hash := common.HexToHash(p.TxHash)
	switch {
	case err == nil:
		if rec.Kind == action.KindDeployAccount && actor != (common.Address{}) {
			if _, cerr := s.confirm(ctx, actor, rec); cerr != nil {
				logger.Error("回查后登记失败", zap.String("tx", p.TxHash), zap.Error(cerr))
				return
			}
		}
		_ = s.registry.ResolvePending(ctx, hash, model.TxConfirmed, "")

	case errors.Is(err, errs.ErrExecutionReverted):
		if actor != (common.Address{}) {
			_ = s.registry.MarkFailed(ctx, actor)
		}
		_ = s.registry.ResolvePending(ctx, hash, model.TxReverted, err.Error())

	case errors.Is(err, errs.ErrCreationEventNotFound):
		if actor != (common.Address{}) {
			_ = s.registry.MarkUnresolved(ctx, actor, hash)
		}
		_ = s.registry.ResolvePending(ctx, hash, model.TxConfirmed, err.Error())

	case errors.Is(err, errs.ErrPendingOrUnknown):
		_ = s.registry.TouchPending(ctx, hash)

	default:
		logger.Warn("回查交易失败", zap.String("tx", p.TxHash), zap.Error(err))
	}
}
