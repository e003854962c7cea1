package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"station-core/internal/typeddata"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "离线签名 EIP-712 消息",
	Long: `读取中继服务返回的 machine_message (EIP-712 JSON)，使用 Keystore 签名，
输出 machine_signature 供 execute-machine-* 接口使用。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		ks, _ := cmd.Flags().GetString("keystore")

		// 1. 读取消息
		raw, err := os.ReadFile(input)
		if err != nil {
			return fmt.Errorf("读取输入文件失败: %w", err)
		}
		msg, err := typeddata.FromJSON(raw)
		if err != nil {
			return err
		}
		digest, err := msg.Digest()
		if err != nil {
			return err
		}

		// 显示消息详情供用户确认
		td := msg.TypedData()
		fmt.Println("\n================ 待签名消息 ================")
		fmt.Printf("Type:       %s\n", msg.PrimaryType())
		domain, _ := json.Marshal(td.Domain)
		fmt.Printf("Domain:     %s\n", domain)
		body, _ := json.MarshalIndent(td.Message, "            ", "  ")
		fmt.Printf("Message:    %s\n", body)
		fmt.Printf("Digest:     %s\n", hexutil.Encode(digest))
		fmt.Println("============================================")

		// 2. 签名
		s, err := loadSigner(ks)
		if err != nil {
			return err
		}
		sig, err := s.SignTypedData(msg)
		if err != nil {
			return err
		}

		fmt.Printf("\n签名者:    %s\n", s.Address().Hex())
		fmt.Printf("Signature: %s\n", hexutil.Encode(sig))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringP("input", "i", "message.json", "EIP-712 JSON 文件路径")
	signCmd.Flags().StringP("keystore", "k", "machine.json", "Keystore 文件路径")
}
