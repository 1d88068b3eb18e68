// Package client 调用目标服务的 REST API。
//
// 计划状态、打卡历史和目标都以服务端为准，这里的请求一律不走缓存。
package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"GoalEngine/config"
	"GoalEngine/internal/model"
	"GoalEngine/pkg/breaker"
	"GoalEngine/pkg/errors"
	"GoalEngine/pkg/logger"
	"GoalEngine/pkg/token"
)

// Backend REST API
type Backend interface {
	GetPlanStatus(ctx context.Context, userID, goalID string) (model.PlanStatus, error)
	RetryPlanGeneration(ctx context.Context, userID, goalID string) (model.PlanStatus, error)
	// ListCheckIns 按日期倒序返回
	ListCheckIns(ctx context.Context, userID, goalID string) ([]model.CheckIn, error)
	GetGoal(ctx context.Context, userID, goalID string) (model.Goal, error)
	ListActiveGoals(ctx context.Context, userID string) ([]model.Goal, error)
}

// StatusError 后端返回了非 2xx
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// ErrTransport 请求没有拿到响应（连接失败、超时）
var ErrTransport = stderrors.New("backend transport error")

// IsBackendFailure 只有传输错误和 5xx 计入熔断，
// 4xx、解码失败和调用方取消都说明后端本身还在正常应答。
func IsBackendFailure(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return stderrors.Is(err, ErrTransport)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPBackend 基于 hertz client
type HTTPBackend struct {
	baseURL string
	timeout time.Duration
	client  *client.Client
	signer  *token.Signer
	breaker *breaker.CircuitBreaker
	logger  *zap.Logger
}

// Options 构造参数，零值字段使用配置
type Options struct {
	BaseURL string
	Timeout time.Duration
	Signer  *token.Signer
	Logger  *zap.Logger
}

func New(opts Options) (*HTTPBackend, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = config.Cfg.BackendBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.Cfg.BackendTimeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Signer == nil {
		opts.Signer = token.FromConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logger.L()
	}

	c, err := client.NewClient(
		client.WithDialer(standard.NewDialer()),
		client.WithDialTimeout(opts.Timeout),
		client.WithClientReadTimeout(opts.Timeout),
		client.WithWriteTimeout(opts.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	return &HTTPBackend{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		client:  c,
		signer:  opts.Signer,
		breaker: breaker.New("backend", 5, 30*time.Second).WithFailureFilter(IsBackendFailure),
		logger:  opts.Logger,
	}, nil
}

func (b *HTTPBackend) GetPlanStatus(ctx context.Context, userID, goalID string) (model.PlanStatus, error) {
	var resp model.PlanStatusResponse
	if err := b.do(ctx, consts.MethodGet, userID, "/v1/goals/"+url.PathEscape(goalID)+"/plan/status", &resp); err != nil {
		return "", err
	}
	if !resp.Status.Valid() {
		return "", fmt.Errorf("%w: %q", errors.PlanStatusLookup, resp.Status)
	}
	return resp.Status, nil
}

func (b *HTTPBackend) RetryPlanGeneration(ctx context.Context, userID, goalID string) (model.PlanStatus, error) {
	var resp model.PlanStatusResponse
	if err := b.do(ctx, consts.MethodPost, userID, "/v1/goals/"+url.PathEscape(goalID)+"/plan/retry", &resp); err != nil {
		return "", err
	}
	if !resp.Status.Valid() {
		return "", fmt.Errorf("%w: %q", errors.PlanStatusLookup, resp.Status)
	}
	return resp.Status, nil
}

func (b *HTTPBackend) ListCheckIns(ctx context.Context, userID, goalID string) ([]model.CheckIn, error) {
	var list model.CheckInList
	if err := b.do(ctx, consts.MethodGet, userID, "/v1/goals/"+url.PathEscape(goalID)+"/check-ins?order=desc", &list); err != nil {
		return nil, err
	}

	out := make([]model.CheckIn, 0, len(list.Items))
	for _, rec := range list.Items {
		c, err := rec.ToCheckIn(time.UTC)
		if err != nil {
			b.logger.Warn("Skipping malformed check-in",
				zap.String("goal_id", goalID),
				zap.String("date", rec.Date),
				zap.Error(err),
			)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *HTTPBackend) GetGoal(ctx context.Context, userID, goalID string) (model.Goal, error) {
	var goal model.Goal
	if err := b.do(ctx, consts.MethodGet, userID, "/v1/goals/"+url.PathEscape(goalID), &goal); err != nil {
		return model.Goal{}, err
	}
	if goal.UserID == "" {
		goal.UserID = userID
	}
	return goal, nil
}

func (b *HTTPBackend) ListActiveGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	var list model.GoalList
	if err := b.do(ctx, consts.MethodGet, userID, "/v1/goals?status=active", &list); err != nil {
		return nil, err
	}
	for i := range list.Items {
		if list.Items[i].UserID == "" {
			list.Items[i].UserID = userID
		}
	}
	return list.Items, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, userID, path string, out interface{}) error {
	return b.breaker.Call(ctx, func(ctx context.Context) error {
		return b.roundTrip(ctx, method, userID, path, out)
	})
}

func (b *HTTPBackend) roundTrip(ctx context.Context, method, userID, path string, out interface{}) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(b.baseURL + path)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	tok, err := b.signer.ServiceToken(userID)
	if err != nil {
		return err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	if err := b.client.DoTimeout(ctx, req, resp, b.timeout); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}

	var env envelope
	body := resp.Body()
	decodeErr := error(nil)
	if len(body) > 0 {
		decodeErr = json.Unmarshal(body, &env)
	}

	// 错误响应的 body 可能不是 JSON（网关页面），状态码优先
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		se := &StatusError{StatusCode: status}
		if decodeErr == nil && env.Error != nil {
			se.Code = env.Error.Code
			se.Message = env.Error.Message
		}
		if status == consts.StatusNotFound {
			return fmt.Errorf("%w: %w", errors.GoalNotFound, se)
		}
		return se
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, decodeErr)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", path, err)
	}
	return nil
}
