package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回一个携带具体信息的副本
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrUpstream         = Errno{Code: 10005, Message: "Upstream service error"}
)

// Business Errors (20000+)
var (
	ErrEncoding                 = Errno{Code: 20101, Message: "Encoding error"}
	ErrMalformedDocument        = Errno{Code: 20201, Message: "Malformed identity document"}
	ErrInvalidSignatureEncoding = Errno{Code: 20301, Message: "Invalid signature encoding"}
	ErrSignatureMismatch        = Errno{Code: 20302, Message: "Signature mismatch"}
	ErrExecutionReverted        = Errno{Code: 20401, Message: "Execution reverted"}
	ErrPendingOrUnknown         = Errno{Code: 20402, Message: "Transaction pending or unknown"}
	ErrCreationEventNotFound    = Errno{Code: 20403, Message: "Creation event not found"}
	ErrRegistrationNotFound     = Errno{Code: 20501, Message: "Registration not found"}
	ErrRegistrationBusy         = Errno{Code: 20502, Message: "Registration in progress"}
	ErrMachineSignatureRequired = Errno{Code: 20503, Message: "Machine signature required"}
)
