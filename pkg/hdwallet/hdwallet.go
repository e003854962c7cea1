// Package hdwallet 从 BIP-39 助记词按 BIP-44 路径派生 secp256k1 私钥。
package hdwallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath 以太坊系第一个外部地址
const DefaultPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidMnemonic = errors.New("无效的助记词")
	ErrInvalidPath     = errors.New("无效的派生路径")
)

// GenerateMnemonic 生成一个新的随机助记词。
// bitSize: 128 (12个单词) 或 256 (24个单词)。
func GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %v", err)
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveKey 解析路径并派生私钥
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func DeriveKey(mnemonic, passphrase, path string) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	indexes, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	// 网络参数只影响 xprv 序列化前缀，不影响派生结果
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %v", err)
	}

	for _, idx := range indexes {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %v", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

func parsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if path == "m" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "m/") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	segments := strings.Split(path[2:], "/")
	out := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil || val >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: 路径段 '%s'", ErrInvalidPath, segment)
		}

		index := uint32(val)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}
		out = append(out, index)
	}
	return out, nil
}
