// Package verify 恢复签名者并与期望地址比较。
// 签名不匹配是正常结果而不是错误: 调用方通过 Result.Outcome 区分
// "签名格式非法" 与 "签名者不是期望地址"。
package verify

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"station-core/internal/did"
	"station-core/internal/errs"
	"station-core/internal/typeddata"
	"station-core/pkg/monitor"
)

type Outcome int

const (
	Valid Outcome = iota
	Mismatch
	InvalidEncoding
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Mismatch:
		return "mismatch"
	default:
		return "invalid_encoding"
	}
}

type Result struct {
	Outcome   Outcome
	Recovered common.Address // InvalidEncoding 时为零值
	Reason    string
}

func (r Result) OK() bool { return r.Outcome == Valid }

// Err 把结果转换为错误分类，Valid 返回 nil
func (r Result) Err() error {
	switch r.Outcome {
	case Valid:
		return nil
	case Mismatch:
		return errs.ErrSignatureMismatch
	default:
		return errs.ErrInvalidSignatureEncoding
	}
}

// Recover 从 32 字节摘要与 65 字节签名恢复地址，v 接受 0/1 和 27/28
func Recover(digest, sig []byte) (common.Address, error) {
	if len(digest) != 32 {
		return common.Address{}, errs.ErrInvalidSignatureEncoding
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errs.ErrInvalidSignatureEncoding
	}

	norm := make([]byte, len(sig))
	copy(norm, sig)
	if norm[crypto.RecoveryIDOffset] >= 27 {
		norm[crypto.RecoveryIDOffset] -= 27
	}
	if norm[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errs.ErrInvalidSignatureEncoding
	}

	pub, err := crypto.SigToPub(digest, norm)
	if err != nil {
		return common.Address{}, errs.ErrInvalidSignatureEncoding
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Digest 对摘要验签
func Digest(digest, sig []byte, expected common.Address) Result {
	addr, err := Recover(digest, sig)
	if err != nil {
		return Result{Outcome: InvalidEncoding, Reason: err.Error()}
	}
	if addr != expected {
		return Result{Outcome: Mismatch, Recovered: addr, Reason: "recovered " + addr.Hex()}
	}
	return Result{Outcome: Valid, Recovered: addr}
}

// Typed 对 EIP-712 消息验签
func Typed(msg *typeddata.Message, sig []byte, expected common.Address) Result {
	digest, err := msg.Digest()
	if err != nil {
		return Result{Outcome: InvalidEncoding, Reason: err.Error()}
	}
	r := Digest(digest, sig, expected)
	monitor.IncVerification("typed", r.Outcome.String())
	return r
}

// Text 对 EIP-191 personal message 验签
func Text(data, sig []byte, expected common.Address) Result {
	r := Digest(accounts.TextHash(data), sig, expected)
	monitor.IncVerification("text", r.Outcome.String())
	return r
}

// Policy 文档校验策略
type Policy struct {
	// RequireOwnerBinding 要求 issuer 同时等于 #owner 服务中的地址，
	// 没有 #owner 时等于 controller 中的地址
	RequireOwnerBinding bool
}

// Document 校验文档签名块: 对 doc.ID 的 personal-message 签名必须恢复出 issuer
func Document(doc *did.Document, p Policy) Result {
	r := document(doc, p)
	monitor.IncVerification("document", r.Outcome.String())
	return r
}

func document(doc *did.Document, p Policy) Result {
	if doc.Signature == nil {
		return Result{Outcome: InvalidEncoding, Reason: "document has no signature"}
	}
	if !common.IsHexAddress(doc.Signature.Issuer) {
		return Result{Outcome: InvalidEncoding, Reason: "issuer is not an address"}
	}
	issuer := common.HexToAddress(doc.Signature.Issuer)

	sig, err := hexutil.Decode(doc.Signature.Hash)
	if err != nil {
		return Result{Outcome: InvalidEncoding, Reason: "signature is not 0x hex"}
	}

	r := Digest(accounts.TextHash([]byte(doc.ID)), sig, issuer)
	if !r.OK() || !p.RequireOwnerBinding {
		return r
	}

	bound, ok := bindingAddress(doc)
	if !ok {
		return Result{Outcome: Mismatch, Recovered: r.Recovered, Reason: "document has no owner binding"}
	}
	if bound != issuer {
		return Result{Outcome: Mismatch, Recovered: r.Recovered, Reason: "issuer is not the bound owner " + bound.Hex()}
	}
	return r
}

func bindingAddress(doc *did.Document) (common.Address, bool) {
	if s, ok := doc.FindService(did.ServiceOwner); ok && common.IsHexAddress(s.Data) {
		return common.HexToAddress(s.Data), true
	}
	id, err := did.ParseID(doc.Controller)
	if err != nil || !common.IsHexAddress(strings.TrimSpace(id.Address)) {
		return common.Address{}, false
	}
	return common.HexToAddress(id.Address), true
}
