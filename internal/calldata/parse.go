package calldata

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"station-core/internal/errs"
)

// ParseAddress 严格解析 20 字节地址，长度不对返回 ErrEncoding
func ParseAddress(s string) (common.Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return common.Address{}, errs.Encodingf("address %q is not hex", s)
	}
	if len(b) != common.AddressLength {
		return common.Address{}, errs.Encodingf("address %q is %d bytes, want %d", s, len(b), common.AddressLength)
	}
	return common.BytesToAddress(b), nil
}

// ParseBytes 解析 0x 前缀的 hex 字节串，空串得到空切片
func ParseBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errs.Encodingf("bytes %q: %v", s, err)
	}
	return b, nil
}

// ParseSignature 解析 65 字节签名
func ParseSignature(s string) ([]byte, error) {
	b, err := ParseBytes(s)
	if err != nil {
		return nil, err
	}
	if err := checkSignature("", b); err != nil {
		return nil, err
	}
	return b, nil
}

var attributeType = mustTupleType()

func mustTupleType() abi.Arguments {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "name", Type: "bytes"},
		{Name: "value", Type: "bytes"},
		{Name: "validity", Type: "uint32"},
		{Name: "created", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

type attributeTuple struct {
	Name     []byte
	Value    []byte
	Validity uint32
	Created  *big.Int
}

// Attribute DID 预编译合约 readAttribute 的返回
type Attribute struct {
	Name     []byte
	Value    []byte
	Validity uint32
}

// DecodeAttribute 解析 readAttribute 的 eth_call 返回值
func DecodeAttribute(ret []byte) (*Attribute, error) {
	out, err := attributeType.Unpack(ret)
	if err == nil && len(out) == 1 {
		if v, ok := abi.ConvertType(out[0], new(attributeTuple)).(*attributeTuple); ok {
			return &Attribute{Name: v.Name, Value: v.Value, Validity: v.Validity}, nil
		}
	}

	// 兼容旧节点: 固定偏移 256 之后即 value，尾部补零
	if len(ret) <= 256 {
		return nil, errs.Encodingf("attribute result too short (%d bytes)", len(ret))
	}
	return &Attribute{Value: bytes.TrimRight(ret[256:], "\x00")}, nil
}

// EncodeAttribute 按 readAttribute 的返回格式编码，DecodeAttribute 的逆
func EncodeAttribute(a Attribute) ([]byte, error) {
	return attributeType.Pack(attributeTuple{
		Name:     a.Name,
		Value:    a.Value,
		Validity: a.Validity,
		Created:  new(big.Int),
	})
}
