package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validate = v
		// hex_bytes: 0x 前缀的 hex 字节串 (calldata、签名)
		_ = validate.RegisterValidation("hex_bytes", func(fl validator.FieldLevel) bool {
			_, err := hexutil.Decode(fl.Field().String())
			return err == nil
		})
		// sig65: 65 字节签名
		_ = validate.RegisterValidation("sig65", func(fl validator.FieldLevel) bool {
			b, err := hexutil.Decode(fl.Field().String())
			return err == nil && len(b) == 65
		})
	}
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			param := e.Param()

			switch tag {
			case "required":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
			case "email":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 格式不正确", field))
			case "eth_addr":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是合法的地址", field))
			case "hex_bytes":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 0x 开头的 hex", field))
			case "sig65":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 65 字节签名", field))
			case "numeric":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是十进制整数", field))
			case "min":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度至少为 %s", field, param))
			case "max":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度不能超过 %s", field, param))
			case "oneof":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
			default:
				errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, tag))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "请求参数错误"
}
