package cmd

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"station-core/internal/signer"
	"station-core/pkg/hdwallet"
	"station-core/pkg/keystore"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "私钥管理",
}

var keyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新私钥并保存为 Keystore",
	Long:  `生成 BIP-39 助记词，按派生路径得到私钥，使用密码加密后写入 Keystore 文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		path, _ := cmd.Flags().GetString("path")

		// 1. 生成助记词
		mnemonic, err := hdwallet.GenerateMnemonic(256)
		if err != nil {
			return err
		}
		key, err := hdwallet.DeriveKey(mnemonic, "", path)
		if err != nil {
			return err
		}

		// 2. 加密保存
		if err := saveKey(key, out); err != nil {
			return err
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Printf("地址 [%s]: %s\n", path, crypto.PubkeyToAddress(key.PublicKey).Hex())
		fmt.Printf("Keystore 已保存到: %s\n", out)
		fmt.Println("---------------------------------------------------")
		fmt.Println("请妥善保管您的助记词！")
		return nil
	},
}

var keyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "导入 hex 私钥或助记词并保存为 Keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		path, _ := cmd.Flags().GetString("path")

		secret, err := readPassword("请输入私钥 (hex) 或助记词: ")
		if err != nil {
			return err
		}
		key, err := parseSecret(secret, path)
		if err != nil {
			return err
		}
		if err := saveKey(key, out); err != nil {
			return err
		}
		fmt.Printf("地址: %s\nKeystore 已保存到: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex(), out)
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "显示 Keystore 对应的地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks, _ := cmd.Flags().GetString("keystore")
		s, err := loadSigner(ks)
		if err != nil {
			return err
		}
		fmt.Println(s.Address().Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd, addressCmd)
	keyCmd.AddCommand(keyNewCmd, keyImportCmd)

	for _, c := range []*cobra.Command{keyNewCmd, keyImportCmd} {
		c.Flags().StringP("output", "o", "machine.json", "Keystore 输出路径")
		c.Flags().StringP("path", "p", "m/44'/60'/0'/0/0", "BIP-44 派生路径")
	}
	addressCmd.Flags().StringP("keystore", "k", "machine.json", "Keystore 文件路径")
}

func parseSecret(secret, path string) (*ecdsa.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if strings.Contains(secret, " ") {
		return hdwallet.DeriveKey(secret, "", path)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(secret, "0x"))
	if err != nil {
		return nil, errors.New("既不是 hex 私钥也不是助记词")
	}
	return key, nil
}

func saveKey(key *ecdsa.PrivateKey, out string) error {
	password, err := readPassword("请设置 Keystore 密码: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("请再次输入密码: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("两次输入的密码不一致")
	}
	enc, err := keystore.EncryptKey(key, password)
	if err != nil {
		return err
	}
	return enc.SaveToFile(out)
}

func loadSigner(path string) (*signer.LocalSigner, error) {
	password, err := readPassword("请输入 Keystore 密码: ")
	if err != nil {
		return nil, err
	}
	return signer.FromKeystore(path, password, "machine")
}
