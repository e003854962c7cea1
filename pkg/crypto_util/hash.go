package crypto_util

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"
)

// Blake2b256 计算 32 字节的 Blake2b 摘要 (Substrate 存储键使用的 blake2_256)。
func Blake2b256(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil) // key 为空时不会返回错误
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CalculateBlake3 计算输入的 Blake3 哈希值。
// 用作幂等键 / 请求指纹。
func CalculateBlake3(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}
