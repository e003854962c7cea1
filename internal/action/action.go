// Package action 描述 Gas Station 可以代付的全部操作。
//
// Request 是封闭的: 只有本包内的类型实现了它，calldata 与 typeddata
// 两个包对它做穷举 switch。所有 Request 均为值类型，构造函数会拷贝传入的切片，
// 换一个 Nonce 就必须构造一个新的 Request。
package action

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Kind int

const (
	KindDeployAccount Kind = iota + 1
	KindTransferStationBalance
	KindExecuteGeneric
	KindExecuteAsAccount
	KindExecuteBatch
	KindTransferAccountBalance
)

func (k Kind) String() string {
	switch k {
	case KindDeployAccount:
		return "deploy_account"
	case KindTransferStationBalance:
		return "transfer_station_balance"
	case KindExecuteGeneric:
		return "execute_generic"
	case KindExecuteAsAccount:
		return "execute_as_account"
	case KindExecuteBatch:
		return "execute_batch"
	case KindTransferAccountBalance:
		return "transfer_account_balance"
	default:
		return "unknown"
	}
}

// ParseKind String 的逆
func ParseKind(s string) (Kind, bool) {
	for k := KindDeployAccount; k <= KindTransferAccountBalance; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// NeedsMachineSignature 该类操作是否还需要目标智能账户 (设备) 的签名
func (k Kind) NeedsMachineSignature() bool {
	return k == KindExecuteAsAccount || k == KindTransferAccountBalance
}

// Request 可被中继的操作
type Request interface {
	Kind() Kind
	// NonceValue 返回 Owner 签名所绑定的 Nonce
	NonceValue() *big.Int
	sealed()
}

// DeployAccount 为 Actor (设备 EOA) 部署一个智能账户
type DeployAccount struct {
	Actor common.Address
	Nonce *big.Int
}

// TransferStationBalance 把 Gas Station 余额转移到新的 Station 地址
type TransferStationBalance struct {
	NewStation common.Address
	Nonce      *big.Int
}

// ExecuteGeneric 由 Gas Station 直接调用 Target
type ExecuteGeneric struct {
	Target common.Address
	Data   []byte
	Nonce  *big.Int
}

// ExecuteAsAccount 由智能账户 Machine 调用 Target，需要 Owner 与 Machine 双签
type ExecuteAsAccount struct {
	Machine common.Address
	Target  common.Address
	Data    []byte
	Nonce   *big.Int
}

// BatchEntry 批量执行中的一项，Machine 的签名需事先拿到
type BatchEntry struct {
	Machine          common.Address
	Target           common.Address
	Data             []byte
	Nonce            *big.Int
	MachineSignature []byte
}

// ExecuteBatch 一次代付多个智能账户的调用，各项顺序一一对应
type ExecuteBatch struct {
	Entries []BatchEntry
	Nonce   *big.Int
}

// TransferAccountBalance 把智能账户余额转给 Recipient
type TransferAccountBalance struct {
	Machine   common.Address
	Recipient common.Address
	Nonce     *big.Int
}

func NewDeployAccount(actor common.Address, nonce *big.Int) DeployAccount {
	return DeployAccount{Actor: actor, Nonce: copyInt(nonce)}
}

func NewTransferStationBalance(newStation common.Address, nonce *big.Int) TransferStationBalance {
	return TransferStationBalance{NewStation: newStation, Nonce: copyInt(nonce)}
}

func NewExecuteGeneric(target common.Address, data []byte, nonce *big.Int) ExecuteGeneric {
	return ExecuteGeneric{Target: target, Data: common.CopyBytes(data), Nonce: copyInt(nonce)}
}

func NewExecuteAsAccount(machine, target common.Address, data []byte, nonce *big.Int) ExecuteAsAccount {
	return ExecuteAsAccount{Machine: machine, Target: target, Data: common.CopyBytes(data), Nonce: copyInt(nonce)}
}

func NewExecuteBatch(entries []BatchEntry, nonce *big.Int) ExecuteBatch {
	cp := make([]BatchEntry, len(entries))
	for i, e := range entries {
		cp[i] = BatchEntry{
			Machine:          e.Machine,
			Target:           e.Target,
			Data:             common.CopyBytes(e.Data),
			Nonce:            copyInt(e.Nonce),
			MachineSignature: common.CopyBytes(e.MachineSignature),
		}
	}
	return ExecuteBatch{Entries: cp, Nonce: copyInt(nonce)}
}

func NewTransferAccountBalance(machine, recipient common.Address, nonce *big.Int) TransferAccountBalance {
	return TransferAccountBalance{Machine: machine, Recipient: recipient, Nonce: copyInt(nonce)}
}

func (DeployAccount) Kind() Kind          { return KindDeployAccount }
func (TransferStationBalance) Kind() Kind { return KindTransferStationBalance }
func (ExecuteGeneric) Kind() Kind         { return KindExecuteGeneric }
func (ExecuteAsAccount) Kind() Kind       { return KindExecuteAsAccount }
func (ExecuteBatch) Kind() Kind           { return KindExecuteBatch }
func (TransferAccountBalance) Kind() Kind { return KindTransferAccountBalance }

func (r DeployAccount) NonceValue() *big.Int          { return copyInt(r.Nonce) }
func (r TransferStationBalance) NonceValue() *big.Int { return copyInt(r.Nonce) }
func (r ExecuteGeneric) NonceValue() *big.Int         { return copyInt(r.Nonce) }
func (r ExecuteAsAccount) NonceValue() *big.Int       { return copyInt(r.Nonce) }
func (r ExecuteBatch) NonceValue() *big.Int           { return copyInt(r.Nonce) }
func (r TransferAccountBalance) NonceValue() *big.Int { return copyInt(r.Nonce) }

func (DeployAccount) sealed()          {}
func (TransferStationBalance) sealed() {}
func (ExecuteGeneric) sealed()         {}
func (ExecuteAsAccount) sealed()       {}
func (ExecuteBatch) sealed()           {}
func (TransferAccountBalance) sealed() {}

// Signatures 中继调用携带的签名
// Machine 只用于 ExecuteAsAccount / TransferAccountBalance; 批量的设备签名在 BatchEntry 中
type Signatures struct {
	Owner   []byte
	Machine []byte
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
