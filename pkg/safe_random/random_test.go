package safe_random

import (
	"math/big"
	"testing"
)

func TestGenerateRandomHexString(t *testing.T) {
	s, err := GenerateRandomHexString(16)
	if err != nil {
		t.Fatalf("生成失败: %v", err)
	}
	if len(s) != 32 {
		t.Fatalf("长度错误: %d", len(s))
	}
}

func TestGenerateRandomInt(t *testing.T) {
	max := big.NewInt(10)
	for i := 0; i < 100; i++ {
		n, err := GenerateRandomInt(max)
		if err != nil {
			t.Fatalf("生成失败: %v", err)
		}
		if n.Sign() < 0 || n.Cmp(max) >= 0 {
			t.Fatalf("越界: %s", n)
		}
	}

	if _, err := GenerateRandomInt(big.NewInt(0)); err == nil {
		t.Fatal("max=0 应返回错误")
	}
}

func TestGenerateNonceBase(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := GenerateNonceBase()
		if err != nil {
			t.Fatalf("生成失败: %v", err)
		}
		if n < 1 || n > 1_000_000_000 {
			t.Fatalf("越界: %d", n)
		}
	}
}
