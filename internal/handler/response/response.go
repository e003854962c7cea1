package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"station-core/internal/errs"
	"station-core/internal/station"
	"station-core/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response
// data.retryable 表示能否用新 nonce 重新构造请求;
// 未决交易在 data 中带回 tx_hash，调用方按哈希回查，不要重发
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(Translate(err))
	data := gin.H{"retryable": errs.Retryable(err)}
	if hash, ok := errs.PendingHash(err); ok {
		data["tx_hash"] = hash.Hex()
	}
	if hash, ok := errs.CreationEventHash(err); ok {
		data["tx_hash"] = hash.Hex()
	}
	var re *errs.RevertError
	if errors.As(err, &re) {
		data["reason"] = re.Reason
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

// Translate 把领域错误映射为接口错误码，保留原始描述
func Translate(err error) error {
	var e errno.Errno
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return e
	case errors.Is(err, errs.ErrEncoding):
		e = errno.ErrEncoding
	case errors.Is(err, errs.ErrMalformedDocument):
		e = errno.ErrMalformedDocument
	case errors.Is(err, errs.ErrInvalidSignatureEncoding):
		e = errno.ErrInvalidSignatureEncoding
	case errors.Is(err, errs.ErrSignatureMismatch):
		e = errno.ErrSignatureMismatch
	case errors.Is(err, errs.ErrExecutionReverted):
		e = errno.ErrExecutionReverted
	case errors.Is(err, errs.ErrPendingOrUnknown):
		e = errno.ErrPendingOrUnknown
	case errors.Is(err, errs.ErrCreationEventNotFound):
		e = errno.ErrCreationEventNotFound
	case errors.Is(err, station.ErrRegistrationNotFound):
		e = errno.ErrRegistrationNotFound
	case errors.Is(err, station.ErrRegistrationBusy):
		e = errno.ErrRegistrationBusy
	case errors.Is(err, station.ErrNoMachineSigner):
		e = errno.ErrMachineSignatureRequired
	default:
		return err
	}
	return e.WithMessage(err.Error())
}
