package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"station-core/internal/getreal"
	"station-core/internal/handler/request"
	"station-core/internal/handler/response"
	"station-core/pkg/errno"
)

// RemoteVerifier 远端校验服务，*getreal.Client 满足该接口
type RemoteVerifier interface {
	VerifyDID(ctx context.Context, address, tag string) (json.RawMessage, error)
	VerifyStorage(ctx context.Context, address, tag string) (json.RawMessage, error)
	VerifyStorageCount(ctx context.Context, address string, expected int, tag string) (json.RawMessage, error)
}

// VerifyHandler 转发到远端校验服务
type VerifyHandler struct {
	remote RemoteVerifier
}

func NewVerifyHandler(remote RemoteVerifier) *VerifyHandler {
	return &VerifyHandler{remote: remote}
}

// VerifyDID POST /api/v1/verify/did
func (h *VerifyHandler) VerifyDID(c *gin.Context) {
	var req request.RemoteVerifyRequest
	if !bind(c, &req) {
		return
	}
	h.forward(c)(h.remote.VerifyDID(c.Request.Context(), req.Address, req.Tag))
}

// VerifyStorage POST /api/v1/verify/storage
// 带 expected_count 时校验条目数量
func (h *VerifyHandler) VerifyStorage(c *gin.Context) {
	var req request.RemoteVerifyRequest
	if !bind(c, &req) {
		return
	}
	if req.ExpectedCount != nil {
		h.forward(c)(h.remote.VerifyStorageCount(c.Request.Context(), req.Address, *req.ExpectedCount, req.Tag))
		return
	}
	h.forward(c)(h.remote.VerifyStorage(c.Request.Context(), req.Address, req.Tag))
}

func (h *VerifyHandler) forward(c *gin.Context) func(json.RawMessage, error) {
	return func(data json.RawMessage, err error) {
		var se *getreal.StatusError
		switch {
		case errors.As(err, &se):
			response.Error(c, errno.ErrUpstream.WithMessage(se.Error()))
		case err != nil:
			response.Error(c, err)
		default:
			response.Success(c, data)
		}
	}
}
