package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"stocksync/internal/model"
)

// Remote 远端写入端点
// Submit 必须可以用同一个幂等键安全地调用多次 —— 去重是服务端的责任
type Remote interface {
	Submit(ctx context.Context, item *QueueItem) error
	RefreshSession(ctx context.Context) error
}

// RemoteError 远端写入失败的分类结果
// 网络错误和 5xx 可重试；401 走会话刷新路径；
// 其余 4xx 不可重试 —— 但同步驱动目前对所有失败统一退避重试，
// 分类只进失败日志，留给操作员判断
type RemoteError struct {
	StatusCode   int
	Message      string
	Retryable    bool
	Unauthorized bool
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("网络错误: %s", e.Message)
	}
	return fmt.Sprintf("远端返回 %d: %s", e.StatusCode, e.Message)
}

var kindPaths = map[string]string{
	model.KindSale:      "/api/v1/sync/sale",
	model.KindReceiving: "/api/v1/sync/receiving",
	model.KindReturn:    "/api/v1/sync/return",
}

// HTTPRemote 基于 HTTP 的远端客户端
type HTTPRemote struct {
	baseURL       string
	refreshSecret string
	httpClient    *http.Client

	mu    sync.RWMutex
	token string
}

func NewHTTPRemote(baseURL, token, refreshSecret string) *HTTPRemote {
	return &HTTPRemote{
		baseURL:       strings.TrimRight(baseURL, "/"),
		refreshSecret: refreshSecret,
		token:         token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Submit 用排队项里存的幂等键和载荷重放写请求
func (r *HTTPRemote) Submit(ctx context.Context, item *QueueItem) error {
	path, ok := kindPaths[item.Kind]
	if !ok {
		return &RemoteError{Message: fmt.Sprintf("未知的操作类型: %s", item.Kind), Retryable: false}
	}

	var body map[string]interface{}
	if err := json.Unmarshal([]byte(item.Payload), &body); err != nil {
		return &RemoteError{Message: fmt.Sprintf("载荷损坏: %v", err), Retryable: false}
	}
	body["idempotency_key"] = item.IdempotencyKey

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return &RemoteError{Message: err.Error(), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return &RemoteError{Message: err.Error(), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Token", r.currentToken())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		// 网络不可达、超时 —— 典型的离线场景，总是可重试
		return &RemoteError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	return classify(resp)
}

// RefreshSession 用刷新密钥换取新令牌
// 长时间离线后令牌过期很常见，刷新成功后同一写请求立即重试一次，
// 不必把一整轮退避浪费在过期凭证上
func (r *HTTPRemote) RefreshSession(ctx context.Context) error {
	bodyBytes, _ := json.Marshal(map[string]string{"refresh_secret": r.refreshSecret})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/v1/session/refresh", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classify(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("解析刷新响应失败: %w", err)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		return fmt.Errorf("刷新响应缺少令牌")
	}

	r.mu.Lock()
	r.token = data.Token
	r.mu.Unlock()
	return nil
}

func (r *HTTPRemote) currentToken() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	message := resp.Status
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			message = env.Message
		}
	}

	return &RemoteError{
		StatusCode:   resp.StatusCode,
		Message:      message,
		Retryable:    resp.StatusCode >= 500,
		Unauthorized: resp.StatusCode == http.StatusUnauthorized,
	}
}
