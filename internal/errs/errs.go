// Package errs 定义中继链路的错误分类。
// 只有 ErrEncoding 与 ErrExecutionReverted 可以直接重试; ErrPendingOrUnknown 必须先按交易哈希回查。
package errs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEncoding                 = errors.New("encoding error")
	ErrMalformedDocument        = errors.New("malformed document")
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")
	ErrSignatureMismatch        = errors.New("signature mismatch")
	ErrCreationEventNotFound    = errors.New("creation event not found")
	ErrExecutionReverted        = errors.New("execution reverted")
	ErrPendingOrUnknown         = errors.New("transaction pending or unknown")
)

// Encodingf 包装一个 ErrEncoding
func Encodingf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}

// Malformedf 包装一个 ErrMalformedDocument
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, fmt.Sprintf(format, args...))
}

// RevertError 交易被链上拒绝 (模拟阶段或上链后 status=0)
type RevertError struct {
	TxHash common.Hash // 模拟阶段失败时为空
	Reason string
}

func (e *RevertError) Error() string {
	msg := ErrExecutionReverted.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.TxHash != (common.Hash{}) {
		msg += " (tx " + e.TxHash.Hex() + ")"
	}
	return msg
}

func (e *RevertError) Unwrap() error { return ErrExecutionReverted }

// PendingError 交易已广播但在时限内未确认，状态未知
type PendingError struct {
	TxHash common.Hash
}

func (e *PendingError) Error() string {
	return ErrPendingOrUnknown.Error() + ": " + e.TxHash.Hex()
}

func (e *PendingError) Unwrap() error { return ErrPendingOrUnknown }

// CreationEventError 回执中缺少部署事件
type CreationEventError struct {
	TxHash common.Hash
}

func (e *CreationEventError) Error() string {
	return ErrCreationEventNotFound.Error() + ": " + e.TxHash.Hex()
}

func (e *CreationEventError) Unwrap() error { return ErrCreationEventNotFound }

// Retryable 判断调用方是否可以构造新请求重试
func Retryable(err error) bool {
	return errors.Is(err, ErrEncoding) || errors.Is(err, ErrExecutionReverted)
}

// CreationEventHash 取出缺少部署事件的交易哈希
func CreationEventHash(err error) (common.Hash, bool) {
	var ce *CreationEventError
	if errors.As(err, &ce) {
		return ce.TxHash, true
	}
	return common.Hash{}, false
}

// PendingHash 取出未决交易的哈希
func PendingHash(err error) (common.Hash, bool) {
	var pe *PendingError
	if errors.As(err, &pe) {
		return pe.TxHash, true
	}
	return common.Hash{}, false
}
