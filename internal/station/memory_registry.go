package station

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"station-core/internal/model"
	"station-core/internal/store"
)

// MemoryRegistry 进程内登记表，未配置数据库时使用
type MemoryRegistry struct {
	mu      sync.RWMutex
	regs    map[common.Address]model.Registration
	pending map[common.Hash]model.PendingTransaction
	seq     uint64
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		regs:    make(map[common.Address]model.Registration),
		pending: make(map[common.Hash]model.PendingTransaction),
	}
}

func (m *MemoryRegistry) FindByActor(ctx context.Context, actor common.Address) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regs[actor]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryRegistry) FindByMachine(ctx context.Context, machine common.Address) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regs {
		if r.State == model.RegistrationConfirmed && r.Machine == machine.Hex() {
			r := r
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryRegistry) SavePending(ctx context.Context, actor common.Address, txHash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs[actor]
	r.Actor = actor.Hex()
	r.TxHash = txHash.Hex()
	r.State = model.RegistrationPending
	m.touch(&r)
	m.regs[actor] = r
	return nil
}

func (m *MemoryRegistry) Confirm(ctx context.Context, actor, machine common.Address, txHash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs[actor]
	r.Actor = actor.Hex()
	r.Machine = machine.Hex()
	r.TxHash = txHash.Hex()
	r.State = model.RegistrationConfirmed
	m.touch(&r)
	m.regs[actor] = r
	return nil
}

func (m *MemoryRegistry) MarkFailed(ctx context.Context, actor common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[actor]
	if !ok || r.State != model.RegistrationPending {
		return nil
	}
	r.State = model.RegistrationFailed
	m.touch(&r)
	m.regs[actor] = r
	return nil
}

func (m *MemoryRegistry) MarkUnresolved(ctx context.Context, actor common.Address, txHash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs[actor]
	if r.State == model.RegistrationConfirmed {
		return nil
	}
	r.Actor = actor.Hex()
	r.TxHash = txHash.Hex()
	r.State = model.RegistrationUnresolved
	m.touch(&r)
	m.regs[actor] = r
	return nil
}

func (m *MemoryRegistry) RecordPending(ctx context.Context, p *model.PendingTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := common.HexToHash(p.TxHash)
	if _, ok := m.pending[hash]; ok {
		return nil
	}
	if p.Status == "" {
		p.Status = model.TxPending
	}
	m.seq++
	p.ID = m.seq
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.pending[hash] = *p
	return nil
}

func (m *MemoryRegistry) FindPending(ctx context.Context, txHash common.Hash) (*model.PendingTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pending[txHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRegistry) ListPending(ctx context.Context, limit int) ([]model.PendingTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PendingTransaction, 0, len(m.pending))
	for _, p := range m.pending {
		if p.Status == model.TxPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRegistry) CountPending(ctx context.Context) (int64, error) {
	list, _ := m.ListPending(ctx, 0)
	return int64(len(list)), nil
}

func (m *MemoryRegistry) ResolvePending(ctx context.Context, txHash common.Hash, status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[txHash]
	if !ok {
		return nil
	}
	p.Status = status
	p.Reason = reason
	p.UpdatedAt = time.Now()
	m.pending[txHash] = p
	return nil
}

func (m *MemoryRegistry) TouchPending(ctx context.Context, txHash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[txHash]
	if !ok {
		return nil
	}
	p.Attempts++
	p.UpdatedAt = time.Now()
	m.pending[txHash] = p
	return nil
}

func (m *MemoryRegistry) touch(r *model.Registration) {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		m.seq++
		r.ID = m.seq
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
