// Package typeddata 为每类操作生成 EIP-712 结构化消息。
//
// Owner 签名的消息使用 MachineStationFactory 域 (verifyingContract = Gas Station)，
// 设备签名的消息使用 MachineSmartAccount 域 (verifyingContract = 智能账户)。
package typeddata

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"station-core/internal/action"
	"station-core/internal/errs"
)

const (
	FactoryDomainName = "MachineStationFactory"
	AccountDomainName = "MachineSmartAccount"
	DomainVersion     = "1"
)

// Domain EIP-712 域
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// FactoryDomain Owner 签名使用的域
func FactoryDomain(chainID *big.Int, station common.Address) Domain {
	return Domain{Name: FactoryDomainName, Version: DomainVersion, ChainID: new(big.Int).Set(chainID), VerifyingContract: station}
}

// AccountDomain 设备签名使用的域
func AccountDomain(chainID *big.Int, machine common.Address) Domain {
	return Domain{Name: AccountDomainName, Version: DomainVersion, ChainID: new(big.Int).Set(chainID), VerifyingContract: machine}
}

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Message 一条待签名的结构化消息
type Message struct {
	data apitypes.TypedData
}

func newMessage(d Domain, primary string, fields []apitypes.Type, values apitypes.TypedDataMessage) (*Message, error) {
	if d.ChainID == nil {
		return nil, errs.Encodingf("domain %s has no chain id", d.Name)
	}
	return &Message{data: apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			primary:        fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: values,
	}}, nil
}

// PrimaryType 消息主类型名
func (m *Message) PrimaryType() string { return m.data.PrimaryType }

// TypedData 返回底层结构，供远程签名方 (eth_signTypedData_v4) 使用，调用方不应修改
func (m *Message) TypedData() apitypes.TypedData { return m.data }

// Digest 计算 keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func (m *Message) Digest() ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(m.data)
	if err != nil {
		return nil, errs.Encodingf("eip712 %s: %v", m.data.PrimaryType, err)
	}
	return hash, nil
}

func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.data)
}

// FromJSON 解析远程方提交的 EIP-712 JSON
func FromJSON(raw []byte) (*Message, error) {
	var td apitypes.TypedData
	if err := json.Unmarshal(raw, &td); err != nil {
		return nil, errs.Encodingf("typed data json: %v", err)
	}
	if td.PrimaryType == "" || len(td.Types[td.PrimaryType]) == 0 {
		return nil, errs.Encodingf("typed data has no primary type")
	}
	return &Message{data: td}, nil
}

// Owner 构造 Gas Station Owner 需要签名的消息
func Owner(req action.Request, d Domain) (*Message, error) {
	nonce := req.NonceValue()
	if nonce == nil {
		return nil, errs.Encodingf("nonce is missing")
	}

	switch r := req.(type) {
	case action.DeployAccount:
		return newMessage(d, "DeployMachineSmartAccount", []apitypes.Type{
			{Name: "machineOwner", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"machineOwner": r.Actor.Hex(),
			"nonce":        u256(nonce),
		})

	case action.TransferStationBalance:
		return newMessage(d, "TransferMachineStationBalance", []apitypes.Type{
			{Name: "newMachineStationAddress", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"newMachineStationAddress": r.NewStation.Hex(),
			"nonce":                    u256(nonce),
		})

	case action.ExecuteGeneric:
		return newMessage(d, "ExecuteTransaction", []apitypes.Type{
			{Name: "target", Type: "address"},
			{Name: "data", Type: "bytes"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"target": r.Target.Hex(),
			"data":   hexutil.Bytes(r.Data),
			"nonce":  u256(nonce),
		})

	case action.ExecuteAsAccount:
		return newMessage(d, "ExecuteMachineTransaction", []apitypes.Type{
			{Name: "machineAddress", Type: "address"},
			{Name: "target", Type: "address"},
			{Name: "data", Type: "bytes"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"machineAddress": r.Machine.Hex(),
			"target":         r.Target.Hex(),
			"data":           hexutil.Bytes(r.Data),
			"nonce":          u256(nonce),
		})

	case action.ExecuteBatch:
		machines := make([]interface{}, len(r.Entries))
		targets := make([]interface{}, len(r.Entries))
		data := make([]interface{}, len(r.Entries))
		nonces := make([]interface{}, len(r.Entries))
		for i, e := range r.Entries {
			if e.Nonce == nil {
				return nil, errs.Encodingf("entry %d: nonce is missing", i)
			}
			machines[i] = e.Machine.Hex()
			targets[i] = e.Target.Hex()
			data[i] = hexutil.Bytes(e.Data)
			nonces[i] = u256(e.Nonce)
		}
		return newMessage(d, "ExecuteMachineBatchTransactions", []apitypes.Type{
			{Name: "machineAddresses", Type: "address[]"},
			{Name: "targets", Type: "address[]"},
			{Name: "data", Type: "bytes[]"},
			{Name: "nonce", Type: "uint256"},
			{Name: "machineNonces", Type: "uint256[]"},
		}, apitypes.TypedDataMessage{
			"machineAddresses": machines,
			"targets":          targets,
			"data":             data,
			"nonce":            u256(nonce),
			"machineNonces":    nonces,
		})

	case action.TransferAccountBalance:
		return newMessage(d, "ExecuteMachineTransferBalance", []apitypes.Type{
			{Name: "machineAddress", Type: "address"},
			{Name: "recipientAddress", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"machineAddress":   r.Machine.Hex(),
			"recipientAddress": r.Recipient.Hex(),
			"nonce":            u256(nonce),
		})

	default:
		return nil, errs.Encodingf("unsupported action %T", req)
	}
}

// Machine 构造智能账户 (设备) 需要签名的消息
// 只有 ExecuteAsAccount 与 TransferAccountBalance 有设备侧消息
func Machine(req action.Request, d Domain) (*Message, error) {
	nonce := req.NonceValue()
	if nonce == nil {
		return nil, errs.Encodingf("nonce is missing")
	}

	switch r := req.(type) {
	case action.ExecuteAsAccount:
		return newMessage(d, "Execute", []apitypes.Type{
			{Name: "target", Type: "address"},
			{Name: "data", Type: "bytes"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"target": r.Target.Hex(),
			"data":   hexutil.Bytes(r.Data),
			"nonce":  u256(nonce),
		})

	case action.TransferAccountBalance:
		return newMessage(d, "TransferMachineBalance", []apitypes.Type{
			{Name: "recipientAddress", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"recipientAddress": r.Recipient.Hex(),
			"nonce":            u256(nonce),
		})

	default:
		return nil, fmt.Errorf("%w: %s has no machine-signed message", errs.ErrEncoding, req.Kind())
	}
}

// uint256 统一用 HexOrDecimal256，JSON 往返不丢精度
func u256(v *big.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}
