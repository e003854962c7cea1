package station

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"station-core/internal/action"
	"station-core/internal/errs"
	"station-core/internal/model"
	"station-core/internal/relay"
	"station-core/internal/store"
	"station-core/internal/typeddata"
	"station-core/pkg/crypto_util"
	"station-core/pkg/logger"
	"station-core/pkg/monitor"
)

// Account actor 与其智能账户
type Account struct {
	Actor   common.Address `json:"actor"`
	Machine common.Address `json:"machine"`
	TxHash  common.Hash    `json:"tx_hash"`
}

// RegistrationKey 登记缓存的 key，跨实例同步时也使用
func RegistrationKey(actor common.Address) string {
	return "registration:" + strings.ToLower(actor.Hex())
}

// RegisterAccount 为 actor 部署智能账户，已登记时直接返回
//
// 部署交易在时限内未确认时返回 *errs.PendingError，登记保持 PENDING，
// 之后的调用或对账任务会按哈希回查，不会重复部署。
func (s *Service) RegisterAccount(ctx context.Context, actor common.Address) (*Account, error) {
	if acc, ok := s.cachedAccount(ctx, actor); ok {
		return acc, nil
	}

	v, err, _ := s.group.Do(actor.Hex(), func() (interface{}, error) {
		return s.register(ctx, actor)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

// LookupAccount 只查询，不部署
func (s *Service) LookupAccount(ctx context.Context, actor common.Address) (*Account, error) {
	if acc, ok := s.cachedAccount(ctx, actor); ok {
		return acc, nil
	}
	reg, err := s.registry.FindByActor(ctx, actor)
	if errors.Is(err, store.ErrNotFound) || (err == nil && reg.State != model.RegistrationConfirmed) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	acc := accountOf(reg)
	s.cacheAccount(ctx, acc)
	return acc, nil
}

func (s *Service) register(ctx context.Context, actor common.Address) (*Account, error) {
	// 1. 跨实例互斥
	if s.lock != nil {
		key := "station:register:" + strings.ToLower(actor.Hex())
		ok, err := s.lock.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRegistrationBusy
		}
		defer func() { _ = s.lock.Release(context.Background(), key) }()
	}

	// 2. 已有登记
	reg, err := s.registry.FindByActor(ctx, actor)
	switch {
	case err == nil && reg.State == model.RegistrationConfirmed:
		acc := accountOf(reg)
		s.cacheAccount(ctx, acc)
		return acc, nil

	case err == nil && reg.State == model.RegistrationPending:
		acc, err := s.resolveDeploy(ctx, actor, common.HexToHash(reg.TxHash))
		if !errors.Is(err, errs.ErrExecutionReverted) {
			return acc, err
		}
		// 上次部署失败，重新部署

	case err == nil && reg.State == model.RegistrationUnresolved:
		return nil, &errs.CreationEventError{TxHash: common.HexToHash(reg.TxHash)}

	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	// 3. 部署
	n, err := s.nextNonce(ctx, s.ownerDomain())
	if err != nil {
		return nil, err
	}
	req := action.NewDeployAccount(actor, n)
	ownerSig, err := s.signOwner(req)
	if err != nil {
		return nil, err
	}

	rec, err := s.relayer.Submit(ctx, req, action.Signatures{Owner: ownerSig})
	if err != nil {
		if hash, ok := errs.PendingHash(err); ok {
			if serr := s.registry.SavePending(ctx, actor, hash); serr != nil {
				logger.Error("保存未决登记失败", zap.String("actor", actor.Hex()), zap.Error(serr))
			}
			s.recordPending(ctx, req, ownerSig, hash, actor)
		}
		if hash, ok := errs.CreationEventHash(err); ok {
			s.recordUnresolved(ctx, req, ownerSig, hash, actor, err)
		}
		return nil, err
	}
	return s.confirm(ctx, actor, rec)
}

// resolveDeploy 按哈希回查之前未确认的部署
func (s *Service) resolveDeploy(ctx context.Context, actor common.Address, hash common.Hash) (*Account, error) {
	rec, err := s.relayer.Lookup(ctx, hash, action.KindDeployAccount)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrExecutionReverted):
			_ = s.registry.MarkFailed(ctx, actor)
			_ = s.registry.ResolvePending(ctx, hash, model.TxReverted, err.Error())
		case errors.Is(err, errs.ErrCreationEventNotFound):
			_ = s.registry.MarkUnresolved(ctx, actor, hash)
			_ = s.registry.ResolvePending(ctx, hash, model.TxConfirmed, err.Error())
		}
		return nil, err
	}
	return s.confirm(ctx, actor, rec)
}

func (s *Service) confirm(ctx context.Context, actor common.Address, rec *relay.Receipt) (*Account, error) {
	if err := s.registry.Confirm(ctx, actor, rec.DeployedAccount, rec.TxHash); err != nil {
		return nil, err
	}
	_ = s.registry.ResolvePending(ctx, rec.TxHash, model.TxConfirmed, "")

	acc := &Account{Actor: actor, Machine: rec.DeployedAccount, TxHash: rec.TxHash}
	s.cacheAccount(ctx, acc)
	monitor.IncAccountRegistered()
	logger.Info("智能账户已登记",
		zap.String("actor", actor.Hex()),
		zap.String("machine", acc.Machine.Hex()),
		zap.String("tx", rec.TxHash.Hex()),
	)
	return acc, nil
}

// TransferStationBalance 把 Gas Station 余额迁移到新的 Station
func (s *Service) TransferStationBalance(ctx context.Context, newStation common.Address) (*relay.Receipt, error) {
	n, err := s.nextNonce(ctx, s.ownerDomain())
	if err != nil {
		return nil, err
	}
	req := action.NewTransferStationBalance(newStation, n)
	ownerSig, err := s.signOwner(req)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, req, action.Signatures{Owner: ownerSig})
}

// signOwner 以 Factory 域生成 Owner 消息并签名
func (s *Service) signOwner(req action.Request) ([]byte, error) {
	msg, err := typeddata.Owner(req, s.factoryDomain())
	if err != nil {
		return nil, err
	}
	return s.owner.SignTypedData(msg)
}

func (s *Service) factoryDomain() typeddata.Domain {
	return typeddata.FactoryDomain(s.relayer.ChainID(), s.relayer.Station())
}

func (s *Service) accountDomain(machine common.Address) typeddata.Domain {
	return typeddata.AccountDomain(s.relayer.ChainID(), machine)
}

// submit 提交并在超时未确认时登记回查
func (s *Service) submit(ctx context.Context, req action.Request, sigs action.Signatures) (*relay.Receipt, error) {
	rec, err := s.relayer.Submit(ctx, req, sigs)
	if hash, ok := errs.PendingHash(err); ok {
		s.recordPending(ctx, req, sigs.Owner, hash, common.Address{})
	}
	return rec, err
}

func (s *Service) recordPending(ctx context.Context, req action.Request, ownerSig []byte, hash common.Hash, actor common.Address) {
	p := pendingRecord(req, ownerSig, hash, actor)
	if err := s.registry.RecordPending(ctx, p); err != nil {
		logger.Error("记录未决交易失败", zap.String("tx", hash.Hex()), zap.Error(err))
		return
	}
	logger.Warn("交易未在时限内确认，已登记回查", zap.String("kind", p.Kind), zap.String("tx", p.TxHash))
	s.refreshPendingGauge(ctx)
}

// recordUnresolved 部署已上链但没有部署事件: 登记转为 UNRESOLVED，交易记录直接给出终态
func (s *Service) recordUnresolved(ctx context.Context, req action.Request, ownerSig []byte, hash common.Hash, actor common.Address, cause error) {
	if err := s.registry.MarkUnresolved(ctx, actor, hash); err != nil {
		logger.Error("标记登记待人工处理失败", zap.String("actor", actor.Hex()), zap.Error(err))
	}
	p := pendingRecord(req, ownerSig, hash, actor)
	p.Status = model.TxConfirmed
	p.Reason = cause.Error()
	if err := s.registry.RecordPending(ctx, p); err != nil {
		logger.Error("记录交易失败", zap.String("tx", hash.Hex()), zap.Error(err))
	}
	logger.Error("部署回执缺少事件，需人工处理", zap.String("actor", actor.Hex()), zap.String("tx", hash.Hex()))
}

func pendingRecord(req action.Request, ownerSig []byte, hash common.Hash, actor common.Address) *model.PendingTransaction {
	// 指纹: kind || nonce || owner 签名
	fp := []byte(req.Kind().String())
	fp = append(fp, req.NonceValue().Bytes()...)
	fp = append(fp, ownerSig...)

	p := &model.PendingTransaction{
		TxHash:      hash.Hex(),
		Kind:        req.Kind().String(),
		Fingerprint: crypto_util.CalculateBlake3(fp),
	}
	if actor != (common.Address{}) {
		p.Actor = actor.Hex()
	}
	return p
}

func (s *Service) refreshPendingGauge(ctx context.Context) {
	if n, err := s.registry.CountPending(ctx); err == nil {
		monitor.SetPending(int(n))
	}
}

func (s *Service) cachedAccount(ctx context.Context, actor common.Address) (*Account, bool) {
	if s.cache == nil {
		return nil, false
	}
	var acc Account
	if err := s.cache.Get(ctx, RegistrationKey(actor), &acc); err != nil {
		return nil, false
	}
	return &acc, true
}

func (s *Service) cacheAccount(ctx context.Context, acc *Account) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, RegistrationKey(acc.Actor), acc, s.cacheTTL); err != nil {
		logger.Warn("写登记缓存失败", zap.String("actor", acc.Actor.Hex()), zap.Error(err))
	}
}

func accountOf(r *model.Registration) *Account {
	return &Account{
		Actor:   common.HexToAddress(r.Actor),
		Machine: common.HexToAddress(r.Machine),
		TxHash:  common.HexToHash(r.TxHash),
	}
}
