package grpc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"station-core/internal/did"
	"station-core/internal/errs"
	"station-core/internal/verify"
	"station-core/pkg/logger"
)

// DocumentVerifier *station.Service 满足该接口
type DocumentVerifier interface {
	VerifyDocument(raw []byte) (*did.Document, verify.Result, error)
}

// DocumentHandler implements DocumentServiceServer
type DocumentHandler struct {
	UnimplementedDocumentServiceServer
	verifier DocumentVerifier
}

func NewDocumentHandler(v DocumentVerifier) *DocumentHandler {
	return &DocumentHandler{verifier: v}
}

func (h *DocumentHandler) Verify(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	doc, res, err := h.verifier.VerifyDocument(req.GetValue())
	if err != nil {
		if errors.Is(err, errs.ErrMalformedDocument) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		logger.Error("[gRPC] Verify failed", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}

	out := map[string]interface{}{
		"id":      doc.ID,
		"outcome": res.Outcome.String(),
		"valid":   res.OK(),
	}
	if res.Recovered != (common.Address{}) {
		out["recovered"] = res.Recovered.Hex()
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	if cid, err := did.ContentID(req.GetValue()); err == nil {
		out["cid"] = cid
	}
	return structpb.NewStruct(out)
}

func (h *DocumentHandler) ContentID(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if len(req.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty document")
	}
	cid, err := did.ContentID(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(cid), nil
}
