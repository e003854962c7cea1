package handler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"station-core/internal/action"
	"station-core/internal/calldata"
	"station-core/internal/did"
	"station-core/internal/errs"
	"station-core/internal/handler/request"
	"station-core/internal/handler/response"
	"station-core/internal/relay"
	"station-core/internal/station"
	"station-core/internal/typeddata"
	"station-core/internal/verify"
	"station-core/pkg/errno"
	"station-core/pkg/validator"
)

// StationService *station.Service 满足该接口
type StationService interface {
	RegisterAccount(ctx context.Context, actor common.Address) (*station.Account, error)
	LookupAccount(ctx context.Context, actor common.Address) (*station.Account, error)
	TransferStationBalance(ctx context.Context, newStation common.Address) (*relay.Receipt, error)

	PrepareStorageTx(ctx context.Context, r station.StorageRequest) (*station.Prepared, error)
	PrepareDIDTx(ctx context.Context, subject common.Address, r station.DIDRequest) (*station.Prepared, error)
	ExecuteGeneric(ctx context.Context, target common.Address, data []byte, n *big.Int, ownerSig []byte) (*relay.Receipt, error)

	PrepareAccountStorageTx(ctx context.Context, machine common.Address, r station.StorageRequest) (*station.Prepared, error)
	PrepareAccountDIDTx(ctx context.Context, machine, actor common.Address, r station.DIDRequest) (*station.Prepared, error)
	ExecuteAccountTx(ctx context.Context, machine, target common.Address, data []byte, n *big.Int, ownerSig, machineSig []byte) (*relay.Receipt, error)
	ExecuteBatch(ctx context.Context, entries []action.BatchEntry) (*relay.Receipt, error)

	PrepareAccountTransfer(ctx context.Context, machine, recipient common.Address) (*station.Prepared, error)
	ExecuteAccountTransfer(ctx context.Context, machine, recipient common.Address, n *big.Int, ownerSig, machineSig []byte) (*relay.Receipt, error)
	TransferAccountBalance(ctx context.Context, machine, recipient common.Address) (*relay.Receipt, error)

	Reconcile(ctx context.Context, hash common.Hash) (*relay.Receipt, error)
	VerifyDocument(raw []byte) (*did.Document, verify.Result, error)
	ResolveDocument(ctx context.Context, account common.Address, name string) (*did.Document, error)
	ResolveReference(ctx context.Context, ref string) (*did.Document, error)
}

type StationHandler struct {
	svc StationService
}

func NewStationHandler(svc StationService) *StationHandler {
	return &StationHandler{svc: svc}
}

// CreateAccount 部署或返回 actor 的智能账户
// POST /api/v1/create-smart-account
func (h *StationHandler) CreateAccount(c *gin.Context) {
	var req request.CreateAccountRequest
	if !bind(c, &req) {
		return
	}
	acc, err := h.svc.RegisterAccount(c.Request.Context(), common.HexToAddress(req.Actor))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, acc)
}

// GetAccount 只查询登记
// GET /api/v1/account/:actor
func (h *StationHandler) GetAccount(c *gin.Context) {
	actor, err := calldata.ParseAddress(c.Param("actor"))
	if err != nil {
		response.Error(c, err)
		return
	}
	acc, err := h.svc.LookupAccount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, acc)
}

// TransferStationBalance 迁移 Gas Station 余额
// POST /api/v1/transfer-machine-station-balance
func (h *StationHandler) TransferStationBalance(c *gin.Context) {
	var req request.TransferStationBalanceRequest
	if !bind(c, &req) {
		return
	}
	h.receipt(c)(h.svc.TransferStationBalance(c.Request.Context(), common.HexToAddress(req.NewStation)))
}

// GenerateStorageTx POST /api/v1/generate-storage-tx
func (h *StationHandler) GenerateStorageTx(c *gin.Context) {
	var req request.StorageTxRequest
	if !bind(c, &req) {
		return
	}
	h.prepared(c)(h.svc.PrepareStorageTx(c.Request.Context(), storageRequest(req)))
}

// GenerateDIDTx POST /api/v1/generate-did-tx
func (h *StationHandler) GenerateDIDTx(c *gin.Context) {
	var req request.DIDTxRequest
	if !bind(c, &req) {
		return
	}
	h.prepared(c)(h.svc.PrepareDIDTx(c.Request.Context(), common.HexToAddress(req.Subject), didRequest(req)))
}

// ExecuteTx POST /api/v1/execute-tx
func (h *StationHandler) ExecuteTx(c *gin.Context) {
	var req request.ExecuteTxRequest
	if !bind(c, &req) {
		return
	}
	data, n, sig, err := decodeCall(req.Calldata, req.Nonce, req.OwnerSignature)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.receipt(c)(h.svc.ExecuteGeneric(c.Request.Context(), common.HexToAddress(req.Target), data, n, sig))
}

// GenerateAccountStorageTx POST /api/v1/generate-smart-account-storage-tx
func (h *StationHandler) GenerateAccountStorageTx(c *gin.Context) {
	var req request.StorageTxRequest
	if !bind(c, &req) {
		return
	}
	if req.Machine == "" {
		response.Error(c, errno.ErrBind.WithMessage("Machine 不能为空"))
		return
	}
	h.prepared(c)(h.svc.PrepareAccountStorageTx(c.Request.Context(), common.HexToAddress(req.Machine), storageRequest(req)))
}

// GenerateAccountDIDTx POST /api/v1/generate-smart-account-create-did-tx
func (h *StationHandler) GenerateAccountDIDTx(c *gin.Context) {
	var req request.DIDTxRequest
	if !bind(c, &req) {
		return
	}
	if req.Actor == "" {
		response.Error(c, errno.ErrBind.WithMessage("Actor 不能为空"))
		return
	}
	h.prepared(c)(h.svc.PrepareAccountDIDTx(c.Request.Context(),
		common.HexToAddress(req.Subject), common.HexToAddress(req.Actor), didRequest(req)))
}

// ExecuteMachineTx POST /api/v1/execute-machine-tx
func (h *StationHandler) ExecuteMachineTx(c *gin.Context) {
	var req request.ExecuteMachineTxRequest
	if !bind(c, &req) {
		return
	}
	data, n, ownerSig, err := decodeCall(req.Calldata, req.Nonce, req.OwnerSignature)
	if err != nil {
		response.Error(c, err)
		return
	}
	machineSig, err := calldata.ParseSignature(req.MachineSignature)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.receipt(c)(h.svc.ExecuteAccountTx(c.Request.Context(),
		common.HexToAddress(req.Machine), common.HexToAddress(req.Target), data, n, ownerSig, machineSig))
}

// ExecuteMachineBatch POST /api/v1/execute-machine-batch-txs
func (h *StationHandler) ExecuteMachineBatch(c *gin.Context) {
	var req request.ExecuteBatchRequest
	if !bind(c, &req) {
		return
	}
	entries := make([]action.BatchEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		data, n, sig, err := decodeCall(e.Calldata, e.Nonce, e.MachineSignature)
		if err != nil {
			response.Error(c, err)
			return
		}
		entries = append(entries, action.BatchEntry{
			Machine:          common.HexToAddress(e.Machine),
			Target:           common.HexToAddress(e.Target),
			Data:             data,
			Nonce:            n,
			MachineSignature: sig,
		})
	}
	h.receipt(c)(h.svc.ExecuteBatch(c.Request.Context(), entries))
}

// GenerateMachineTransferTx POST /api/v1/generate-machine-transfer-balance-tx
func (h *StationHandler) GenerateMachineTransferTx(c *gin.Context) {
	var req request.MachineTransferRequest
	if !bind(c, &req) {
		return
	}
	h.prepared(c)(h.svc.PrepareAccountTransfer(c.Request.Context(),
		common.HexToAddress(req.Machine), common.HexToAddress(req.Recipient)))
}

// ExecuteMachineTransfer POST /api/v1/execute-machine-transfer-balance
func (h *StationHandler) ExecuteMachineTransfer(c *gin.Context) {
	var req request.ExecuteMachineTransferRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	machine, recipient := common.HexToAddress(req.Machine), common.HexToAddress(req.Recipient)

	// 没带签名时由服务端准备并执行
	if req.OwnerSignature == "" && req.MachineSignature == "" {
		h.receipt(c)(h.svc.TransferAccountBalance(ctx, machine, recipient))
		return
	}
	if req.Nonce == "" || req.OwnerSignature == "" || req.MachineSignature == "" {
		response.Error(c, errno.ErrBind.WithMessage("Nonce、OwnerSignature 与 MachineSignature 需同时提供"))
		return
	}
	_, n, ownerSig, err := decodeCall("0x", req.Nonce, req.OwnerSignature)
	if err != nil {
		response.Error(c, err)
		return
	}
	machineSig, err := calldata.ParseSignature(req.MachineSignature)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.receipt(c)(h.svc.ExecuteAccountTransfer(ctx, machine, recipient, n, ownerSig, machineSig))
}

// GetTransaction 按哈希回查交易，用于处理超时未确认的提交
// GET /api/v1/tx/:hash
func (h *StationHandler) GetTransaction(c *gin.Context) {
	raw, err := calldata.ParseBytes(c.Param("hash"))
	if err != nil || len(raw) != common.HashLength {
		response.Error(c, errs.Encodingf("tx hash %q", c.Param("hash")))
		return
	}
	h.receipt(c)(h.svc.Reconcile(c.Request.Context(), common.BytesToHash(raw)))
}

// VerifyDocument 解码并校验文档
// POST /api/v1/did/verify
func (h *StationHandler) VerifyDocument(c *gin.Context) {
	var req request.VerifyDocumentRequest
	if !bind(c, &req) {
		return
	}
	raw, err := hexutil.Decode(req.Document)
	if err != nil {
		response.Error(c, errs.Encodingf("document: %v", err))
		return
	}
	doc, res, err := h.svc.VerifyDocument(raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, verificationData(doc, raw, res))
}

// ResolveDocument 读回账户的链上文档
// GET /api/v1/did/:account
func (h *StationHandler) ResolveDocument(c *gin.Context) {
	account, err := calldata.ParseAddress(c.Param("account"))
	if err != nil {
		response.Error(c, err)
		return
	}
	name := c.Query("name")
	if name == "" {
		response.Error(c, errno.ErrBind.WithMessage("name 不能为空"))
		return
	}
	doc, err := h.svc.ResolveDocument(c.Request.Context(), account, name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, doc)
}

// ResolveReference 按文档引用读回
// POST /api/v1/did/resolve
func (h *StationHandler) ResolveReference(c *gin.Context) {
	var req request.ResolveReferenceRequest
	if !bind(c, &req) {
		return
	}
	doc, err := h.svc.ResolveReference(c.Request.Context(), req.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, doc)
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return false
	}
	return true
}

func (h *StationHandler) receipt(c *gin.Context) func(*relay.Receipt, error) {
	return func(rec *relay.Receipt, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, receiptData(rec))
	}
}

func (h *StationHandler) prepared(c *gin.Context) func(*station.Prepared, error) {
	return func(p *station.Prepared, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, preparedData(p))
	}
}

func decodeCall(data, nonce, sig string) ([]byte, *big.Int, []byte, error) {
	b, err := calldata.ParseBytes(data)
	if err != nil {
		return nil, nil, nil, err
	}
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok || n.Sign() < 0 {
		return nil, nil, nil, errs.Encodingf("nonce %q", nonce)
	}
	s, err := calldata.ParseSignature(sig)
	if err != nil {
		return nil, nil, nil, err
	}
	return b, n, s, nil
}

func storageRequest(r request.StorageTxRequest) station.StorageRequest {
	return station.StorageRequest{Email: r.Email, ItemType: r.ItemType, Item: r.Item, Tag: r.Tag}
}

func didRequest(r request.DIDTxRequest) station.DIDRequest {
	return station.DIDRequest{Email: r.Email, Company: r.Company, Tag: r.Tag}
}

type receiptView struct {
	Kind            string `json:"kind"`
	TxHash          string `json:"tx_hash"`
	BlockNumber     uint64 `json:"block_number"`
	GasUsed         uint64 `json:"gas_used"`
	Fee             string `json:"fee"`
	DeployedAccount string `json:"deployed_account,omitempty"`
}

func receiptData(r *relay.Receipt) receiptView {
	v := receiptView{
		Kind:        r.Kind.String(),
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber,
		GasUsed:     r.GasUsed,
		Fee:         r.FeeEther().String(),
	}
	if r.DeployedAccount != (common.Address{}) {
		v.DeployedAccount = r.DeployedAccount.Hex()
	}
	return v
}

type preparedView struct {
	Kind             string             `json:"kind"`
	Machine          string             `json:"machine,omitempty"`
	Recipient        string             `json:"recipient,omitempty"`
	Target           string             `json:"target,omitempty"`
	Calldata         string             `json:"calldata,omitempty"`
	Nonce            string             `json:"nonce"`
	OwnerSignature   string             `json:"owner_signature"`
	MachineMessage   *typeddata.Message `json:"machine_message,omitempty"`
	MachineSignature string             `json:"machine_signature,omitempty"`
	Reference        string             `json:"reference,omitempty"`
}

func preparedData(p *station.Prepared) preparedView {
	v := preparedView{
		Kind:           p.Kind.String(),
		Nonce:          p.Nonce.String(),
		OwnerSignature: hexutil.Encode(p.OwnerSignature),
		MachineMessage: p.MachineMessage,
		Reference:      p.Reference,
	}
	if p.Machine != (common.Address{}) {
		v.Machine = p.Machine.Hex()
	}
	if p.Recipient != (common.Address{}) {
		v.Recipient = p.Recipient.Hex()
	}
	if p.Target != (common.Address{}) {
		v.Target = p.Target.Hex()
		v.Calldata = hexutil.Encode(p.Calldata)
	}
	if len(p.MachineSignature) > 0 {
		v.MachineSignature = hexutil.Encode(p.MachineSignature)
	}
	return v
}

func verificationData(doc *did.Document, raw []byte, res verify.Result) gin.H {
	out := gin.H{
		"document": doc,
		"outcome":  res.Outcome.String(),
		"valid":    res.OK(),
	}
	if res.Recovered != (common.Address{}) {
		out["recovered"] = res.Recovered.Hex()
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	if cid, err := did.ContentID(raw); err == nil {
		out["cid"] = cid
	}
	return out
}
