// Package calldata 按 Solidity ABI 规则拼装合约调用数据。
package calldata

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"station-core/internal/action"
	"station-core/internal/errs"
)

// SignatureLength r || s || v
const SignatureLength = 65

// 预编译合约地址
var (
	DIDPrecompile     = common.HexToAddress("0x0000000000000000000000000000000000000800")
	StoragePrecompile = common.HexToAddress("0x0000000000000000000000000000000000000801")
)

type method struct {
	Sig      string
	Selector []byte
	Args     abi.Arguments
}

var (
	addAttribute    = mustMethod("addAttribute(address,bytes,bytes,uint32)")
	addItem         = mustMethod("addItem(bytes,bytes)")
	readAttribute   = mustMethod("readAttribute(address,bytes)")
	deployAccount   = mustMethod("deployMachineSmartAccount(address,uint256,bytes)")
	transferStation = mustMethod("transferMachineStationBalance(address,uint256,bytes)")
	executeGeneric  = mustMethod("executeTransaction(address,bytes,uint256,bytes)")
	executeMachine  = mustMethod("executeMachineTransaction(address,address,bytes,uint256,bytes,bytes)")
	executeBatch    = mustMethod("executeMachineBatchTransactions(address[],address[],bytes[],uint256,uint256[],bytes,bytes[])")
	transferMachine = mustMethod("executeMachineTransferBalance(address,address,uint256,bytes,bytes)")
)

// mustMethod 从函数签名解析参数类型并计算 selector
func mustMethod(sig string) method {
	open := strings.IndexByte(sig, '(')
	inner := sig[open+1 : len(sig)-1]

	var args abi.Arguments
	if inner != "" {
		for _, t := range strings.Split(inner, ",") {
			typ, err := abi.NewType(t, "", nil)
			if err != nil {
				panic(fmt.Sprintf("calldata: bad type %q in %s: %v", t, sig, err))
			}
			args = append(args, abi.Argument{Type: typ})
		}
	}

	return method{
		Sig:      sig,
		Selector: crypto.Keccak256([]byte(sig))[:4],
		Args:     args,
	}
}

func (m method) pack(values ...interface{}) ([]byte, error) {
	packed, err := m.Args.Pack(values...)
	if err != nil {
		return nil, errs.Encodingf("%s: %v", m.Sig, err)
	}
	out := make([]byte, 0, len(m.Selector)+len(packed))
	out = append(out, m.Selector...)
	return append(out, packed...), nil
}

// Selector 返回函数签名对应的 4 字节选择器
func Selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// WriteAttribute 构造 DID 预编译合约 addAttribute 调用
func WriteAttribute(account common.Address, name, value []byte, validity uint32) ([]byte, error) {
	if len(name) == 0 {
		return nil, errs.Encodingf("attribute name is empty")
	}
	return addAttribute.pack(account, name, value, validity)
}

// WriteItem 构造存储预编译合约 addItem 调用
func WriteItem(itemType, item []byte) ([]byte, error) {
	if len(itemType) == 0 {
		return nil, errs.Encodingf("item type is empty")
	}
	return addItem.pack(itemType, item)
}

// ReadAttribute 构造 DID 预编译合约 readAttribute 调用 (eth_call 使用)
func ReadAttribute(account common.Address, name []byte) ([]byte, error) {
	return readAttribute.pack(account, name)
}

// Relay 构造 Gas Station 合约入口的调用数据
func Relay(req action.Request, sigs action.Signatures) ([]byte, error) {
	if err := checkSignature("owner", sigs.Owner); err != nil {
		return nil, err
	}
	nonce, err := checkUint256(req.NonceValue())
	if err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case action.DeployAccount:
		return deployAccount.pack(r.Actor, nonce, sigs.Owner)

	case action.TransferStationBalance:
		return transferStation.pack(r.NewStation, nonce, sigs.Owner)

	case action.ExecuteGeneric:
		return executeGeneric.pack(r.Target, nonEmpty(r.Data), nonce, sigs.Owner)

	case action.ExecuteAsAccount:
		if err := checkSignature("machine", sigs.Machine); err != nil {
			return nil, err
		}
		return executeMachine.pack(r.Machine, r.Target, nonEmpty(r.Data), nonce, sigs.Owner, sigs.Machine)

	case action.ExecuteBatch:
		return packBatch(r, nonce, sigs.Owner)

	case action.TransferAccountBalance:
		if err := checkSignature("machine", sigs.Machine); err != nil {
			return nil, err
		}
		return transferMachine.pack(r.Machine, r.Recipient, nonce, sigs.Owner, sigs.Machine)

	default:
		return nil, errs.Encodingf("unsupported action %T", req)
	}
}

func packBatch(r action.ExecuteBatch, nonce *big.Int, ownerSig []byte) ([]byte, error) {
	if len(r.Entries) == 0 {
		return nil, errs.Encodingf("batch has no entries")
	}

	n := len(r.Entries)
	machines := make([]common.Address, n)
	targets := make([]common.Address, n)
	data := make([][]byte, n)
	nonces := make([]*big.Int, n)
	machineSigs := make([][]byte, n)

	for i, e := range r.Entries {
		v, err := checkUint256(e.Nonce)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := checkSignature(fmt.Sprintf("machine[%d]", i), e.MachineSignature); err != nil {
			return nil, err
		}
		machines[i] = e.Machine
		targets[i] = e.Target
		data[i] = nonEmpty(e.Data)
		nonces[i] = v
		machineSigs[i] = e.MachineSignature
	}

	return executeBatch.pack(machines, targets, data, nonce, nonces, ownerSig, machineSigs)
}

func checkSignature(role string, sig []byte) error {
	if len(sig) != SignatureLength {
		return errs.Encodingf("%s signature must be %d bytes, got %d", role, SignatureLength, len(sig))
	}
	return nil
}

func checkUint256(v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, errs.Encodingf("nonce is missing")
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return nil, errs.Encodingf("nonce %s out of uint256 range", v)
	}
	return v, nil
}

// abi 打包 nil 切片没问题，统一成空切片方便比较
func nonEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
