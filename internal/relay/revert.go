package relay

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"station-core/internal/errs"
)

// MachineSmartAccountDeployedTopic 工厂部署智能账户时发出的事件，topic1 为新账户地址
var MachineSmartAccountDeployedTopic = crypto.Keccak256Hash([]byte("MachineSmartAccountDeployed(address)"))

// DeployedAccount 从回执日志中取出新部署的智能账户地址
func DeployedAccount(r *types.Receipt) (common.Address, error) {
	for _, l := range r.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != MachineSmartAccountDeployedTopic {
			continue
		}
		if len(l.Topics) >= 2 {
			return common.BytesToAddress(l.Topics[1].Bytes()[12:]), nil
		}
		// 地址未 indexed 时在 data 中
		if len(l.Data) >= 32 {
			return common.BytesToAddress(l.Data[12:32]), nil
		}
	}
	return common.Address{}, &errs.CreationEventError{TxHash: r.TxHash}
}

// revertReason 判断节点错误是否为执行 revert，并尽量解出原因
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
				return s, true
			}
		}
		return trimRevertPrefix(de.Error()), true
	}

	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "revert") {
		return trimRevertPrefix(msg), true
	}
	return "", false
}

func trimRevertPrefix(msg string) string {
	msg = strings.TrimPrefix(msg, "execution reverted: ")
	msg = strings.TrimPrefix(msg, "execution reverted")
	return strings.TrimSpace(msg)
}

// FeeEther 以 18 位精度展示手续费
func (r *Receipt) FeeEther() decimal.Decimal {
	if r.Fee == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(r.Fee, -18)
}
