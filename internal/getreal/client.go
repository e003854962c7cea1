// Package getreal 远端邮箱签名 / 数据键登记 / 校验服务的 HTTP 客户端
package getreal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"station-core/pkg/config"
	"station-core/pkg/logger"
)

var ErrEmptySignature = errors.New("远端服务未返回签名")

// StatusError 远端服务返回非 2xx
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("get-real %s 返回 %d: %s", e.Endpoint, e.Status, e.Body)
}

type Client struct {
	baseURL       string
	serviceAPIKey string
	projectAPIKey string
	httpClient    *http.Client
}

func NewClient(baseURL, serviceAPIKey, projectAPIKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		serviceAPIKey: serviceAPIKey,
		projectAPIKey: projectAPIKey,
		httpClient:    httpClient,
	}
}

func NewFromConfig(cfg config.GetRealConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewClient(cfg.ServiceURL, cfg.ServiceAPIKey, cfg.ProjectAPIKey, &http.Client{Timeout: timeout})
}

type signRequest struct {
	Email      string `json:"email"`
	DIDAddress string `json:"did_address"`
	Tag        string `json:"tag"`
}

type signResponse struct {
	Data struct {
		Signature string `json:"signature"`
	} `json:"data"`
}

// EmailSignature 为 (email, 账户地址) 申请邮箱签名，写入文档的 #emailSignature 服务
func (c *Client) EmailSignature(ctx context.Context, email, machine, tag string) (string, error) {
	var resp signResponse
	if err := c.post(ctx, "v1/sign", signRequest{Email: email, DIDAddress: machine, Tag: tag}, &resp); err != nil {
		return "", err
	}
	if resp.Data.Signature == "" {
		return "", ErrEmptySignature
	}
	return resp.Data.Signature, nil
}

type storeRequest struct {
	Email    string `json:"email"`
	ItemType string `json:"item_type"`
	Tag      string `json:"tag"`
}

// StoreDataKey 登记存储条目的 item type，返回服务端原始响应
func (c *Client) StoreDataKey(ctx context.Context, email, itemType, tag string) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.post(ctx, "v1/data/store", storeRequest{Email: email, ItemType: itemType, Tag: tag}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type verifyRequest struct {
	Address       string `json:"address"`
	Tag           string `json:"tag"`
	ExpectedCount *int   `json:"expected_count,omitempty"`
}

func (c *Client) VerifyDID(ctx context.Context, address, tag string) (json.RawMessage, error) {
	return c.verify(ctx, "v1/verify/did", verifyRequest{Address: address, Tag: tag})
}

func (c *Client) VerifyStorage(ctx context.Context, address, tag string) (json.RawMessage, error) {
	return c.verify(ctx, "v1/data/verify", verifyRequest{Address: address, Tag: tag})
}

func (c *Client) VerifyStorageCount(ctx context.Context, address string, expected int, tag string) (json.RawMessage, error) {
	return c.verify(ctx, "v1/data/verify-count", verifyRequest{Address: address, Tag: tag, ExpectedCount: &expected})
}

func (c *Client) verify(ctx context.Context, endpoint string, req verifyRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.post(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APIKEY", c.serviceAPIKey)
	req.Header.Set("P-APIKEY", c.projectAPIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 get-real %s 失败: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	logger.Debug("get-real 调用",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("cost", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("解析 get-real %s 响应失败: %w", endpoint, err)
	}
	return nil
}
