package station

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"station-core/internal/action"
	"station-core/internal/calldata"
	"station-core/internal/nonce"
	"station-core/internal/typeddata"
	"station-core/pkg/logger"
)

// Prepared 已由 Owner 签名、等待执行的中继调用
type Prepared struct {
	Kind      action.Kind
	Machine   common.Address // 仅智能账户调用
	Recipient common.Address // 仅余额转出
	Target    common.Address
	Calldata  []byte
	Nonce     *big.Int
	Reference string // 仅文档登记: 写入后可按此引用读回

	OwnerSignature []byte
	// MachineMessage 需要设备签名的消息，MachineSignature 只在本地持有设备私钥时给出
	MachineMessage   *typeddata.Message
	MachineSignature []byte
}

// StorageRequest 存储条目
type StorageRequest struct {
	Email    string
	ItemType string
	Item     string
	Tag      string
}

// DIDRequest 文档登记
type DIDRequest struct {
	Email   string
	Company string
	Tag     string
}

// PrepareStorageTx 由 Gas Station 直接写存储预编译合约
func (s *Service) PrepareStorageTx(ctx context.Context, r StorageRequest) (*Prepared, error) {
	data, err := s.storageCalldata(ctx, r)
	if err != nil {
		return nil, err
	}
	return s.prepareGeneric(ctx, calldata.StoragePrecompile, data)
}

// PrepareDIDTx 为普通 EOA 写文档属性 (没有智能账户)
func (s *Service) PrepareDIDTx(ctx context.Context, subject common.Address, r DIDRequest) (*Prepared, error) {
	data, err := s.didCalldata(ctx, subject, subject, r)
	if err != nil {
		return nil, err
	}
	p, err := s.prepareGeneric(ctx, calldata.DIDPrecompile, data)
	if err != nil {
		return nil, err
	}
	p.Reference = s.DocumentReference(subject, r.Company)
	return p, nil
}

// PrepareAccountStorageTx 由智能账户写存储预编译合约
func (s *Service) PrepareAccountStorageTx(ctx context.Context, machine common.Address, r StorageRequest) (*Prepared, error) {
	data, err := s.storageCalldata(ctx, r)
	if err != nil {
		return nil, err
	}
	return s.prepareAsAccount(ctx, machine, calldata.StoragePrecompile, data)
}

// PrepareAccountDIDTx 为智能账户写文档属性，actor 写入 #owner
func (s *Service) PrepareAccountDIDTx(ctx context.Context, machine, actor common.Address, r DIDRequest) (*Prepared, error) {
	data, err := s.didCalldata(ctx, machine, actor, r)
	if err != nil {
		return nil, err
	}
	p, err := s.prepareAsAccount(ctx, machine, calldata.DIDPrecompile, data)
	if err != nil {
		return nil, err
	}
	p.Reference = s.DocumentReference(machine, r.Company)
	return p, nil
}

// PrepareAccountTransfer 智能账户余额转出
func (s *Service) PrepareAccountTransfer(ctx context.Context, machine, recipient common.Address) (*Prepared, error) {
	n, err := s.nextNonce(ctx, nonce.AccountDomain(machine))
	if err != nil {
		return nil, err
	}
	req := action.NewTransferAccountBalance(machine, recipient, n)

	p := &Prepared{Kind: req.Kind(), Machine: machine, Recipient: recipient, Nonce: n}
	if err := s.signBoth(req, machine, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) prepareGeneric(ctx context.Context, target common.Address, data []byte) (*Prepared, error) {
	n, err := s.nextNonce(ctx, s.ownerDomain())
	if err != nil {
		return nil, err
	}
	req := action.NewExecuteGeneric(target, data, n)
	ownerSig, err := s.signOwner(req)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Kind:           req.Kind(),
		Target:         target,
		Calldata:       data,
		Nonce:          n,
		OwnerSignature: ownerSig,
	}, nil
}

func (s *Service) prepareAsAccount(ctx context.Context, machine, target common.Address, data []byte) (*Prepared, error) {
	n, err := s.nextNonce(ctx, nonce.AccountDomain(machine))
	if err != nil {
		return nil, err
	}
	req := action.NewExecuteAsAccount(machine, target, data, n)

	p := &Prepared{Kind: req.Kind(), Machine: machine, Target: target, Calldata: data, Nonce: n}
	if err := s.signBoth(req, machine, p); err != nil {
		return nil, err
	}
	return p, nil
}

// signBoth Owner 签名，并生成设备消息; 本地持有设备私钥时一并签名
func (s *Service) signBoth(req action.Request, machine common.Address, p *Prepared) error {
	ownerSig, err := s.signOwner(req)
	if err != nil {
		return err
	}
	p.OwnerSignature = ownerSig

	msg, err := typeddata.Machine(req, s.accountDomain(machine))
	if err != nil {
		return err
	}
	p.MachineMessage = msg

	if s.machine != nil {
		sig, err := s.machine.SignTypedData(msg)
		if err != nil {
			return err
		}
		p.MachineSignature = sig
	}
	return nil
}

// storageCalldata 先向远端登记数据键，再构造 addItem
func (s *Service) storageCalldata(ctx context.Context, r StorageRequest) ([]byte, error) {
	if s.remote != nil {
		resp, err := s.remote.StoreDataKey(ctx, r.Email, r.ItemType, r.Tag)
		if err != nil {
			return nil, err
		}
		logger.Debug("数据键已登记", zap.String("item_type", r.ItemType), zap.ByteString("response", resp))
	}
	return calldata.WriteItem([]byte(r.ItemType), []byte(r.Item))
}

// didCalldata 组装文档并构造 addAttribute
func (s *Service) didCalldata(ctx context.Context, subject, owner common.Address, r DIDRequest) ([]byte, error) {
	doc, err := s.BuildDocument(ctx, subject, owner, r)
	if err != nil {
		return nil, err
	}
	name := AttributeName(s.didMethod, subject, r.Company)
	return calldata.WriteAttribute(subject, []byte(name), DocumentValue(doc), 0)
}
