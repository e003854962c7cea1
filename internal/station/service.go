// Package station 编排 Gas Station 的业务流程:
// 分配 nonce、生成结构化消息、Owner 签名、交给执行器上链，并维护 actor -> 智能账户 的登记。
package station

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"station-core/internal/action"
	"station-core/internal/model"
	"station-core/internal/nonce"
	"station-core/internal/relay"
	"station-core/internal/signer"
	"station-core/internal/verify"
	"station-core/pkg/cache"
	"station-core/pkg/utils/lock"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRegistrationBusy     = errors.New("registration in progress")
	ErrNoMachineSigner      = errors.New("machine signature required")
)

// Relayer 执行器能力，*relay.Executor 满足该接口
type Relayer interface {
	Submit(ctx context.Context, req action.Request, sigs action.Signatures) (*relay.Receipt, error)
	Lookup(ctx context.Context, hash common.Hash, kind action.Kind) (*relay.Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	ChainID() *big.Int
	Station() common.Address
}

// RemoteService 远端邮箱签名与数据键服务，*getreal.Client 满足该接口
type RemoteService interface {
	EmailSignature(ctx context.Context, email, machine, tag string) (string, error)
	StoreDataKey(ctx context.Context, email, itemType, tag string) (json.RawMessage, error)
}

// Registry 登记与未决交易的持久化，*store.Store 与 MemoryRegistry 满足该接口
type Registry interface {
	FindByActor(ctx context.Context, actor common.Address) (*model.Registration, error)
	FindByMachine(ctx context.Context, machine common.Address) (*model.Registration, error)
	SavePending(ctx context.Context, actor common.Address, txHash common.Hash) error
	Confirm(ctx context.Context, actor, machine common.Address, txHash common.Hash) error
	MarkFailed(ctx context.Context, actor common.Address) error
	MarkUnresolved(ctx context.Context, actor common.Address, txHash common.Hash) error

	RecordPending(ctx context.Context, p *model.PendingTransaction) error
	FindPending(ctx context.Context, txHash common.Hash) (*model.PendingTransaction, error)
	ListPending(ctx context.Context, limit int) ([]model.PendingTransaction, error)
	CountPending(ctx context.Context) (int64, error)
	ResolvePending(ctx context.Context, txHash common.Hash, status, reason string) error
	TouchPending(ctx context.Context, txHash common.Hash) error
}

type Options struct {
	Owner    signer.Signer
	Machine  signer.Signer // 可选: 本地持有设备私钥时代签
	Relayer  Relayer
	Nonces   nonce.Allocator
	Registry Registry
	Remote   RemoteService        // 可选
	Cache    cache.Cache          // 可选
	Lock     lock.DistributedLock // 可选: 多实例部署时串行化同一 actor 的注册

	DIDMethod string
	Policy    verify.Policy
	LockTTL   time.Duration
	CacheTTL  time.Duration
}

type Service struct {
	owner    signer.Signer
	machine  signer.Signer
	relayer  Relayer
	nonces   nonce.Allocator
	registry Registry
	remote   RemoteService
	cache    cache.Cache
	lock     lock.DistributedLock

	didMethod string
	policy    verify.Policy
	lockTTL   time.Duration
	cacheTTL  time.Duration

	// 同一进程内同一 actor 的注册只执行一次
	group singleflight.Group
}

func NewService(opts Options) *Service {
	if opts.DIDMethod == "" {
		opts.DIDMethod = "peaq"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}

	return &Service{
		owner:     opts.Owner,
		machine:   opts.Machine,
		relayer:   opts.Relayer,
		nonces:    opts.Nonces,
		registry:  opts.Registry,
		remote:    opts.Remote,
		cache:     opts.Cache,
		lock:      opts.Lock,
		didMethod: opts.DIDMethod,
		policy:    opts.Policy,
		lockTTL:   opts.LockTTL,
		cacheTTL:  opts.CacheTTL,
	}
}

// Owner Gas Station Owner 地址
func (s *Service) Owner() common.Address { return s.owner.Address() }

// Station Gas Station 合约地址
func (s *Service) Station() common.Address { return s.relayer.Station() }

// nextNonce 从指定域分配一个 nonce
func (s *Service) nextNonce(ctx context.Context, d nonce.Domain) (*big.Int, error) {
	n, err := s.nonces.Next(ctx, d)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(n), nil
}

func (s *Service) ownerDomain() nonce.Domain {
	return nonce.OwnerDomain(s.relayer.Station())
}
