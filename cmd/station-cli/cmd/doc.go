package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"station-core/internal/did"
	"station-core/internal/verify"
)

var docCmd = &cobra.Command{
	Use:   "doc [hex]",
	Short: "解码并校验身份文档",
	Long:  `输入为链上属性值 (编码后文档的 hex 文本)，可直接传参或通过 --input 指定文件。`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		strict, _ := cmd.Flags().GetBool("require-owner")

		var text string
		switch {
		case len(args) == 1:
			text = args[0]
		case input != "":
			b, err := os.ReadFile(input)
			if err != nil {
				return err
			}
			text = string(b)
		default:
			return fmt.Errorf("需要文档 hex 或 --input")
		}

		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(text), "0x"))
		if err != nil {
			return fmt.Errorf("不是 hex 文本: %w", err)
		}
		doc, err := did.Unmarshal(raw)
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(out))

		if cid, err := did.ContentID(raw); err == nil {
			fmt.Printf("CID:     %s\n", cid)
		}
		res := verify.Document(doc, verify.Policy{RequireOwnerBinding: strict})
		fmt.Printf("Outcome: %s\n", res.Outcome)
		if res.Reason != "" {
			fmt.Printf("Reason:  %s\n", res.Reason)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.Flags().StringP("input", "i", "", "文档 hex 文件路径")
	docCmd.Flags().Bool("require-owner", false, "要求签名者等于 #owner")
}
