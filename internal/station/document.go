package station

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"station-core/internal/calldata"
	"station-core/internal/did"
	"station-core/internal/errs"
	"station-core/internal/verify"
	"station-core/pkg/crypto_util"
	"station-core/pkg/logger"
)

var ErrRemoteUnavailable = errors.New("未配置远端签名服务")

// BuildDocument 组装账户文档: #emailSignature 来自远端服务，#owner 为 owner EOA。
// 本地持有 owner 的设备私钥时附带签名块。
func (s *Service) BuildDocument(ctx context.Context, subject, owner common.Address, r DIDRequest) (*did.Document, error) {
	if s.remote == nil {
		return nil, ErrRemoteUnavailable
	}
	emailSig, err := s.remote.EmailSignature(ctx, r.Email, subject.Hex(), r.Tag)
	if err != nil {
		return nil, err
	}

	doc := did.NewMachineDocument(s.didMethod, subject.Hex(), owner.Hex(), emailSig)
	if s.machine != nil && s.machine.Address() == owner {
		sig, err := s.machine.SignText([]byte(doc.ID))
		if err != nil {
			return nil, err
		}
		doc.Signature = &did.Signature{
			Type:   did.SignatureTypeECDSA,
			Issuer: owner.Hex(),
			Hash:   hexutil.Encode(sig),
		}
	}

	if logger.Enabled(zapcore.DebugLevel) {
		if cid, err := did.ContentID(did.Marshal(doc)); err == nil {
			logger.Debug("文档已组装", zap.String("id", doc.ID), zap.String("cid", cid))
		}
	}
	return doc, nil
}

// DocumentValue 属性值: 编码后文档的 hex 文本
func DocumentValue(doc *did.Document) []byte {
	return []byte(hex.EncodeToString(did.Marshal(doc)))
}

// AttributeName 链上属性名
func AttributeName(method string, subject common.Address, company string) string {
	return did.AttributeName(method, subject.Hex(), company)
}

// DocumentReference 对外登记的文档引用 did:<method>:<subject>/<属性名>
func (s *Service) DocumentReference(subject common.Address, company string) string {
	return did.Reference(s.didMethod, subject.Hex(), AttributeName(s.didMethod, subject, company))
}

// VerifyDocument 解码并校验文档签名块
func (s *Service) VerifyDocument(raw []byte) (*did.Document, verify.Result, error) {
	doc, err := did.Unmarshal(raw)
	if err != nil {
		return nil, verify.Result{}, err
	}
	return doc, verify.Document(doc, s.policy), nil
}

// ResolveDocument 从 DID 预编译合约读回账户的文档
func (s *Service) ResolveDocument(ctx context.Context, account common.Address, name string) (*did.Document, error) {
	data, err := calldata.ReadAttribute(account, []byte(name))
	if err != nil {
		return nil, err
	}
	ret, err := s.relayer.Call(ctx, calldata.DIDPrecompile, data)
	if err != nil {
		return nil, err
	}
	attr, err := calldata.DecodeAttribute(ret)
	if err != nil {
		return nil, err
	}

	text := strings.TrimPrefix(strings.TrimSpace(string(attr.Value)), "0x")
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, errs.Malformedf("attribute value is not hex text")
	}
	return did.Unmarshal(raw)
}

// ResolveReference 按 did:<method>:<address>/<name> 引用读回文档
func (s *Service) ResolveReference(ctx context.Context, ref string) (*did.Document, error) {
	id, name, err := did.ParseReference(ref)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(id.Address) {
		return nil, errs.Malformedf("reference address %q", id.Address)
	}
	return s.ResolveDocument(ctx, common.HexToAddress(id.Address), name)
}

// StorageKey 属性的存储键 blake2_256(address || name)
func StorageKey(account common.Address, name string) string {
	key := crypto_util.Blake2b256(account.Bytes(), []byte(name))
	return hexutil.Encode(key[:])
}
