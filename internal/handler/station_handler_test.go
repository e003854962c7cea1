package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"station-core/internal/action"
	"station-core/internal/did"
	"station-core/internal/errs"
	"station-core/internal/relay"
	"station-core/internal/server"
	"station-core/internal/station"
	"station-core/internal/verify"
	"station-core/pkg/errno"
)

var (
	actorAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	machineAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	targetAddr  = common.HexToAddress("0x0000000000000000000000000000000000000801")
	txHash      = common.HexToHash("0xabc123")
	sig65       = "0x" + strings.Repeat("11", 65)
)

// fakeStation 记录调用参数并返回预设结果
type fakeStation struct {
	err error

	gotNonce   *big.Int
	gotData    []byte
	gotEntries []action.BatchEntry
	autoSigned bool
}

func (f *fakeStation) receipt(kind action.Kind) (*relay.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &relay.Receipt{Kind: kind, TxHash: txHash, BlockNumber: 7, GasUsed: 21000, Fee: big.NewInt(1e15)}, nil
}

func (f *fakeStation) prepared(kind action.Kind, target common.Address) (*station.Prepared, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &station.Prepared{Kind: kind, Target: target, Calldata: []byte{0xde, 0xad}, Nonce: big.NewInt(42), OwnerSignature: bytes.Repeat([]byte{1}, 65)}, nil
}

func (f *fakeStation) RegisterAccount(ctx context.Context, actor common.Address) (*station.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &station.Account{Actor: actor, Machine: machineAddr, TxHash: txHash}, nil
}

func (f *fakeStation) LookupAccount(ctx context.Context, actor common.Address) (*station.Account, error) {
	return f.RegisterAccount(ctx, actor)
}

func (f *fakeStation) TransferStationBalance(ctx context.Context, newStation common.Address) (*relay.Receipt, error) {
	return f.receipt(action.KindTransferStationBalance)
}

func (f *fakeStation) PrepareStorageTx(ctx context.Context, r station.StorageRequest) (*station.Prepared, error) {
	return f.prepared(action.KindExecuteGeneric, targetAddr)
}

func (f *fakeStation) PrepareDIDTx(ctx context.Context, subject common.Address, r station.DIDRequest) (*station.Prepared, error) {
	return f.prepared(action.KindExecuteGeneric, targetAddr)
}

func (f *fakeStation) ExecuteGeneric(ctx context.Context, target common.Address, data []byte, n *big.Int, ownerSig []byte) (*relay.Receipt, error) {
	f.gotData, f.gotNonce = data, n
	return f.receipt(action.KindExecuteGeneric)
}

func (f *fakeStation) PrepareAccountStorageTx(ctx context.Context, machine common.Address, r station.StorageRequest) (*station.Prepared, error) {
	return f.prepared(action.KindExecuteAsAccount, targetAddr)
}

func (f *fakeStation) PrepareAccountDIDTx(ctx context.Context, machine, actor common.Address, r station.DIDRequest) (*station.Prepared, error) {
	return f.prepared(action.KindExecuteAsAccount, targetAddr)
}

func (f *fakeStation) ExecuteAccountTx(ctx context.Context, machine, target common.Address, data []byte, n *big.Int, ownerSig, machineSig []byte) (*relay.Receipt, error) {
	f.gotData, f.gotNonce = data, n
	return f.receipt(action.KindExecuteAsAccount)
}

func (f *fakeStation) ExecuteBatch(ctx context.Context, entries []action.BatchEntry) (*relay.Receipt, error) {
	f.gotEntries = entries
	return f.receipt(action.KindExecuteBatch)
}

func (f *fakeStation) PrepareAccountTransfer(ctx context.Context, machine, recipient common.Address) (*station.Prepared, error) {
	return f.prepared(action.KindTransferAccountBalance, common.Address{})
}

func (f *fakeStation) ExecuteAccountTransfer(ctx context.Context, machine, recipient common.Address, n *big.Int, ownerSig, machineSig []byte) (*relay.Receipt, error) {
	f.gotNonce = n
	return f.receipt(action.KindTransferAccountBalance)
}

func (f *fakeStation) TransferAccountBalance(ctx context.Context, machine, recipient common.Address) (*relay.Receipt, error) {
	f.autoSigned = true
	return f.receipt(action.KindTransferAccountBalance)
}

func (f *fakeStation) Reconcile(ctx context.Context, hash common.Hash) (*relay.Receipt, error) {
	return f.receipt(action.KindDeployAccount)
}

func (f *fakeStation) VerifyDocument(raw []byte) (*did.Document, verify.Result, error) {
	if f.err != nil {
		return nil, verify.Result{}, f.err
	}
	return &did.Document{ID: "did:peaq:" + machineAddr.Hex()}, verify.Result{Outcome: verify.Mismatch, Recovered: actorAddr, Reason: "issuer mismatch"}, nil
}

func (f *fakeStation) ResolveDocument(ctx context.Context, account common.Address, name string) (*did.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &did.Document{ID: "did:peaq:" + account.Hex()}, nil
}

func (f *fakeStation) ResolveReference(ctx context.Context, ref string) (*did.Document, error) {
	id, _, err := did.ParseReference(ref)
	if err != nil {
		return nil, err
	}
	return &did.Document{ID: did.FormatID(id.Method, id.Address)}, nil
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCreateAccount(t *testing.T) {
	fake := &fakeStation{}
	r := server.NewHTTPRouter(fake, nil)

	resp := do(t, r, http.MethodPost, "/api/v1/create-smart-account", gin.H{"actor": actorAddr.Hex()})
	require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)

	var acc station.Account
	require.NoError(t, json.Unmarshal(resp.Data, &acc))
	assert.Equal(t, machineAddr, acc.Machine)
	assert.Equal(t, txHash, acc.TxHash)
}

func TestBindingErrors(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)

	tests := []struct {
		name string
		path string
		body gin.H
	}{
		{"missing actor", "/api/v1/create-smart-account", gin.H{}},
		{"bad actor", "/api/v1/create-smart-account", gin.H{"actor": "0x1234"}},
		{"bad email", "/api/v1/generate-storage-tx", gin.H{"email": "nope", "item_type": "t", "item": "i", "tag": "x"}},
		{"short signature", "/api/v1/execute-tx", gin.H{
			"target": targetAddr.Hex(), "calldata": "0x01", "nonce": "1", "owner_signature": "0x1234",
		}},
		{"non decimal nonce", "/api/v1/execute-tx", gin.H{
			"target": targetAddr.Hex(), "calldata": "0x01", "nonce": "0x10", "owner_signature": sig65,
		}},
		{"empty batch", "/api/v1/execute-machine-batch-txs", gin.H{"entries": []gin.H{}}},
		{"account storage without machine", "/api/v1/generate-smart-account-storage-tx", gin.H{
			"email": "a@b.io", "item_type": "t", "item": "i", "tag": "x",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, errno.ErrBind.Code, resp.Code)
		})
	}
}

func TestExecuteTx_DecodesCallAndReturnsReceipt(t *testing.T) {
	fake := &fakeStation{}
	r := server.NewHTTPRouter(fake, nil)

	resp := do(t, r, http.MethodPost, "/api/v1/execute-tx", gin.H{
		"target":          targetAddr.Hex(),
		"calldata":        "0xdeadbeef",
		"nonce":           "123456789012345678901234567890",
		"owner_signature": sig65,
	})
	require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, fake.gotData)
	assert.Equal(t, "123456789012345678901234567890", fake.gotNonce.String())

	var rec struct {
		Kind   string `json:"kind"`
		TxHash string `json:"tx_hash"`
		Fee    string `json:"fee"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, action.KindExecuteGeneric.String(), rec.Kind)
	assert.Equal(t, txHash.Hex(), rec.TxHash)
	assert.Equal(t, "0.001", rec.Fee)
}

func TestGenerateStorageTx_ReturnsPrepared(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)

	resp := do(t, r, http.MethodPost, "/api/v1/generate-storage-tx", gin.H{
		"email": "a@b.io", "item_type": "temperature", "item": "21.5", "tag": "demo",
	})
	require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)

	var p struct {
		Target   string `json:"target"`
		Calldata string `json:"calldata"`
		Nonce    string `json:"nonce"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &p))
	assert.Equal(t, targetAddr.Hex(), p.Target)
	assert.Equal(t, "0xdead", p.Calldata)
	assert.Equal(t, "42", p.Nonce)
}

func TestExecuteMachineBatch(t *testing.T) {
	fake := &fakeStation{}
	r := server.NewHTTPRouter(fake, nil)

	entry := gin.H{
		"machine": machineAddr.Hex(), "target": targetAddr.Hex(),
		"calldata": "0x01", "nonce": "5", "machine_signature": sig65,
	}
	resp := do(t, r, http.MethodPost, "/api/v1/execute-machine-batch-txs", gin.H{"entries": []gin.H{entry, entry}})
	require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)
	require.Len(t, fake.gotEntries, 2)
	assert.Equal(t, machineAddr, fake.gotEntries[1].Machine)
	assert.Equal(t, int64(5), fake.gotEntries[0].Nonce.Int64())
	assert.Len(t, fake.gotEntries[0].MachineSignature, 65)
}

func TestExecuteMachineTransfer(t *testing.T) {
	t.Run("server signed", func(t *testing.T) {
		fake := &fakeStation{}
		r := server.NewHTTPRouter(fake, nil)
		resp := do(t, r, http.MethodPost, "/api/v1/execute-machine-transfer-balance", gin.H{
			"machine": machineAddr.Hex(), "recipient": actorAddr.Hex(),
		})
		require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)
		assert.True(t, fake.autoSigned)
	})

	t.Run("client signed", func(t *testing.T) {
		fake := &fakeStation{}
		r := server.NewHTTPRouter(fake, nil)
		resp := do(t, r, http.MethodPost, "/api/v1/execute-machine-transfer-balance", gin.H{
			"machine": machineAddr.Hex(), "recipient": actorAddr.Hex(),
			"nonce": "9", "owner_signature": sig65, "machine_signature": sig65,
		})
		require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)
		assert.False(t, fake.autoSigned)
		assert.Equal(t, int64(9), fake.gotNonce.Int64())
	})

	t.Run("partial signatures", func(t *testing.T) {
		r := server.NewHTTPRouter(&fakeStation{}, nil)
		resp := do(t, r, http.MethodPost, "/api/v1/execute-machine-transfer-balance", gin.H{
			"machine": machineAddr.Hex(), "recipient": actorAddr.Hex(), "owner_signature": sig65,
		})
		assert.Equal(t, errno.ErrBind.Code, resp.Code)
	})
}

func TestDomainErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"encoding", errs.Encodingf("bad target"), errno.ErrEncoding.Code},
		{"mismatch", errs.ErrSignatureMismatch, errno.ErrSignatureMismatch.Code},
		{"invalid signature", errs.ErrInvalidSignatureEncoding, errno.ErrInvalidSignatureEncoding.Code},
		{"reverted", &errs.RevertError{Reason: "bad nonce"}, errno.ErrExecutionReverted.Code},
		{"pending", &errs.PendingError{TxHash: txHash}, errno.ErrPendingOrUnknown.Code},
		{"no event", &errs.CreationEventError{TxHash: txHash}, errno.ErrCreationEventNotFound.Code},
		{"busy", station.ErrRegistrationBusy, errno.ErrRegistrationBusy.Code},
		{"no machine signer", station.ErrNoMachineSigner, errno.ErrMachineSignatureRequired.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := server.NewHTTPRouter(&fakeStation{err: tt.err}, nil)
			resp := do(t, r, http.MethodPost, "/api/v1/transfer-machine-station-balance", gin.H{"new_station": targetAddr.Hex()})
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.err.Error(), resp.Msg)
		})
	}
}

func TestErrorData(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		txHash    string
		reason    string
	}{
		{"pending", &errs.PendingError{TxHash: txHash}, false, txHash.Hex(), ""},
		{"no event", &errs.CreationEventError{TxHash: txHash}, false, txHash.Hex(), ""},
		{"reverted", &errs.RevertError{Reason: "bad nonce"}, true, "", "bad nonce"},
		{"encoding", errs.Encodingf("bad target"), true, "", ""},
		{"mismatch", errs.ErrSignatureMismatch, false, "", ""},
		{"busy", station.ErrRegistrationBusy, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := server.NewHTTPRouter(&fakeStation{err: tt.err}, nil)
			resp := do(t, r, http.MethodPost, "/api/v1/create-smart-account", gin.H{"actor": actorAddr.Hex()})
			require.NotEqual(t, errno.OK.Code, resp.Code)

			var data struct {
				Retryable bool   `json:"retryable"`
				TxHash    string `json:"tx_hash"`
				Reason    string `json:"reason"`
			}
			require.NoError(t, json.Unmarshal(resp.Data, &data))
			assert.Equal(t, tt.retryable, data.Retryable)
			assert.Equal(t, tt.txHash, data.TxHash)
			assert.Equal(t, tt.reason, data.Reason)
		})
	}
}

func TestGetTransaction(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)

	resp := do(t, r, http.MethodGet, "/api/v1/tx/"+txHash.Hex(), nil)
	assert.Equal(t, errno.OK.Code, resp.Code, resp.Msg)

	resp = do(t, r, http.MethodGet, "/api/v1/tx/0x1234", nil)
	assert.Equal(t, errno.ErrEncoding.Code, resp.Code)
}

func TestVerifyDocument(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)

	resp := do(t, r, http.MethodPost, "/api/v1/did/verify", gin.H{"document": "0x0a0161"})
	require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)

	var out struct {
		Outcome   string `json:"outcome"`
		Valid     bool   `json:"valid"`
		Recovered string `json:"recovered"`
		CID       string `json:"cid"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "mismatch", out.Outcome)
	assert.False(t, out.Valid)
	assert.Equal(t, actorAddr.Hex(), out.Recovered)
	assert.NotEmpty(t, out.CID)

	resp = do(t, server.NewHTTPRouter(&fakeStation{err: errs.Malformedf("truncated")}, nil), http.MethodPost, "/api/v1/did/verify", gin.H{"document": "0x0a"})
	assert.Equal(t, errno.ErrMalformedDocument.Code, resp.Code)
}

func TestResolveDocumentRequiresName(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)

	resp := do(t, r, http.MethodGet, "/api/v1/did/"+machineAddr.Hex(), nil)
	assert.Equal(t, errno.ErrBind.Code, resp.Code)

	resp = do(t, r, http.MethodGet, "/api/v1/did/"+machineAddr.Hex()+"?name=did:peaq:x%23acme", nil)
	assert.Equal(t, errno.OK.Code, resp.Code, resp.Msg)
}

func TestResolveReference(t *testing.T) {
	r := server.NewHTTPRouter(&fakeStation{}, nil)
	ref := "did:peaq:" + machineAddr.Hex() + "/did:peaq:" + machineAddr.Hex() + "#acme"

	resp := do(t, r, http.MethodPost, "/api/v1/did/resolve", gin.H{"reference": ref})
	require.Equal(t, errno.OK.Code, resp.Code, resp.Msg)
	var doc did.Document
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "did:peaq:"+machineAddr.Hex(), doc.ID)

	resp = do(t, r, http.MethodPost, "/api/v1/did/resolve", gin.H{"reference": "did:peaq:" + machineAddr.Hex()})
	assert.Equal(t, errno.ErrMalformedDocument.Code, resp.Code)

	resp = do(t, r, http.MethodPost, "/api/v1/did/resolve", gin.H{})
	assert.Equal(t, errno.ErrBind.Code, resp.Code)
}
