// Package nonce 为签名消息分配唯一 Nonce。
// 同一个域内发出的值互不重复，且按发放顺序严格递增。
package nonce

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"station-core/pkg/monitor"
)

// Domain Nonce 的作用域
type Domain string

// OwnerDomain Gas Station Owner 签名的操作共享一个域
func OwnerDomain(station common.Address) Domain {
	return Domain("station:" + strings.ToLower(station.Hex()))
}

// AccountDomain 每个智能账户一个域
func AccountDomain(machine common.Address) Domain {
	return Domain("account:" + strings.ToLower(machine.Hex()))
}

// Kind 域的类型 (station / account)，用作监控标签
func (d Domain) Kind() string {
	if i := strings.IndexByte(string(d), ':'); i > 0 {
		return string(d)[:i]
	}
	return string(d)
}

// Allocator Nonce 分配器
type Allocator interface {
	Next(ctx context.Context, d Domain) (uint64, error)
}

// MemoryAllocator 单进程分配器，每个域从 base 开始
type MemoryAllocator struct {
	mu   sync.Mutex
	base uint64
	next map[Domain]uint64
}

func NewMemoryAllocator(base uint64) *MemoryAllocator {
	return &MemoryAllocator{
		base: base,
		next: make(map[Domain]uint64),
	}
}

func (a *MemoryAllocator) Next(ctx context.Context, d Domain) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.Lock()
	n, ok := a.next[d]
	if !ok {
		n = a.base
	}
	a.next[d] = n + 1
	a.mu.Unlock()

	monitor.IncNonce(d.Kind())
	return n, nil
}

// MaxRedisBase Redis INCR 只支持有符号 64 位整数
const MaxRedisBase = math.MaxInt64

// 首次访问时以 base 初始化，之后 INCR; 整个脚本在 Redis 内原子执行。
// 结果经 GET 以字符串返回，Lua 的 number 是 double，大于 2^53 会丢精度
var nextScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	redis.call("SET", KEYS[1], ARGV[1])
else
	redis.call("INCR", KEYS[1])
end
return redis.call("GET", KEYS[1])
`)

// RedisAllocator 多实例共享的分配器
type RedisAllocator struct {
	client *redis.Client
	base   uint64
	prefix string
}

func NewRedisAllocator(client *redis.Client, base uint64) *RedisAllocator {
	return &RedisAllocator{
		client: client,
		base:   base,
		prefix: "station:nonce:",
	}
}

func (a *RedisAllocator) Next(ctx context.Context, d Domain) (uint64, error) {
	if a.base > MaxRedisBase {
		return 0, fmt.Errorf("nonce base %d exceeds %d", a.base, uint64(MaxRedisBase))
	}
	text, err := nextScript.Run(ctx, a.client, []string{a.prefix + string(d)}, strconv.FormatUint(a.base, 10)).Text()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, err
	}
	monitor.IncNonce(d.Kind())
	return n, nil
}
