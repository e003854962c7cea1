package did

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentID 编码后文档的 CIDv1 (raw + sha2-256)，用于日志与外部引用
func ContentID(encoded []byte) (string, error) {
	sum, err := multihash.Sum(encoded, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}
