// Package signer 持有私钥并只对外暴露签名能力。
// 私钥永远不会离开 Signer，可在不改调用方的情况下替换为 HSM / 云端 KMS 实现。
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"station-core/internal/typeddata"
	"station-core/pkg/config"
	"station-core/pkg/hdwallet"
	"station-core/pkg/keystore"
	"station-core/pkg/monitor"
)

// Signer 签名能力
type Signer interface {
	// Address 签名者地址
	Address() common.Address
	// SignTypedData 对 EIP-712 消息签名，返回 65 字节 r||s||v (v = 27/28)
	SignTypedData(msg *typeddata.Message) ([]byte, error)
	// SignText 对 EIP-191 personal message 签名，返回 65 字节 r||s||v (v = 27/28)
	SignText(data []byte) ([]byte, error)
	// SignTx 对外层链上交易签名 (EIP-155)
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

var ErrNoKeySource = errors.New("未配置 Owner 私钥来源")

// LocalSigner 内存中的 secp256k1 私钥
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	role    string
}

func NewLocalSigner(key *ecdsa.PrivateKey, role string) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		role:    role,
	}
}

// FromHex 从 hex 私钥构造
func FromHex(hexKey, role string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return NewLocalSigner(key, role), nil
}

// FromKeystore 从加密的 Keystore 文件构造
func FromKeystore(path, password, role string) (*LocalSigner, error) {
	keyJSON, err := keystore.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("加载 Keystore 失败: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("解密 Keystore 失败: %w", err)
	}
	return NewLocalSigner(key, role), nil
}

// FromMnemonic 从助记词按派生路径构造
func FromMnemonic(mnemonic, path, role string) (*LocalSigner, error) {
	key, err := hdwallet.DeriveKey(mnemonic, "", path)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(key, role), nil
}

// OwnerFromConfig 按优先级 private_key > keystore > mnemonic 加载 Owner
func OwnerFromConfig(cfg config.ChainConfig) (*LocalSigner, error) {
	switch {
	case cfg.OwnerPrivateKey != "":
		return FromHex(cfg.OwnerPrivateKey, "owner")
	case cfg.OwnerKeystorePath != "":
		return FromKeystore(cfg.OwnerKeystorePath, cfg.OwnerKeystorePassword, "owner")
	case cfg.OwnerMnemonic != "":
		return FromMnemonic(cfg.OwnerMnemonic, cfg.OwnerDerivationPath, "owner")
	default:
		return nil, ErrNoKeySource
	}
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// String 只输出地址，避免 %v 打印出私钥
func (s *LocalSigner) String() string {
	return s.role + "(" + s.address.Hex() + ")"
}

func (s *LocalSigner) SignTypedData(msg *typeddata.Message) ([]byte, error) {
	digest, err := msg.Digest()
	if err != nil {
		return nil, err
	}
	return s.signDigest(digest)
}

func (s *LocalSigner) SignText(data []byte) ([]byte, error) {
	return s.signDigest(accounts.TextHash(data))
}

func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("交易签名失败: %w", err)
	}
	monitor.IncSignature(s.role + "_tx")
	return signed, nil
}

func (s *LocalSigner) signDigest(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}
	// 合约侧 ecrecover 需要 v = 27/28
	sig[crypto.RecoveryIDOffset] += 27
	monitor.IncSignature(s.role)
	return sig, nil
}
