package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"GoalEngine/pkg/logger"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭状态：正常工作
	StateOpen                  // 开启状态：熔断中
	StateHalfOpen              // 半开状态：尝试恢复
)

// ErrOpen 熔断中，请求未发出
type ErrOpen struct {
	Name string
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// CircuitBreaker 熔断器，包装对后端的调用
type CircuitBreaker struct {
	name             string
	maxFailures      int           // 最大失败次数
	resetTimeout     time.Duration // 重置超时时间
	halfOpenMaxCalls int           // 半开状态最大调用次数
	isFailure        func(error) bool
	now              func() time.Time
	logger           *zap.Logger

	mu            sync.Mutex
	state         State
	failures      int
	lastFailTime  time.Time
	halfOpenCalls int
}

// New 创建熔断器
func New(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: 3, // 半开状态允许3次尝试
		isFailure:        func(error) bool { return true },
		now:              time.Now,
		logger:           logger.L(),
		state:            StateClosed,
	}
}

// WithClock 替换时钟，测试用
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// WithFailureFilter 只有 fn 返回 true 的错误才计入失败，其余错误原样返回但不影响熔断
func (cb *CircuitBreaker) WithFailureFilter(fn func(error) bool) *CircuitBreaker {
	if fn != nil {
		cb.isFailure = fn
	}
	return cb
}

// Call 执行带熔断保护的操作
func (cb *CircuitBreaker) Call(ctx context.Context, operation func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &ErrOpen{Name: cb.name}
	}

	err := operation(ctx)
	cb.recordResult(err)
	return err
}

// allowRequest 检查是否允许请求
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.transitionToHalfOpen()
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

// recordResult 记录操作结果
func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		cb.onSuccess()
	case cb.isFailure(err):
		cb.onFailure()
	case cb.state == StateHalfOpen && cb.halfOpenCalls > 0:
		// 不计数的错误归还半开名额
		cb.halfOpenCalls--
	}
}

// onSuccess 处理成功情况
func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.transitionToClosed()
	default:
	}
}

// onFailure 处理失败情况
func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = cb.now()

	cb.logger.Warn("Backend call failed",
		zap.String("breaker", cb.name),
		zap.Int("failures", cb.failures),
		zap.String("state", cb.stateName()),
	)

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.transitionToOpen()
		}
	case StateHalfOpen:
		cb.transitionToOpen()
	default:
	}
}

// transitionToClosed 转换到关闭状态
func (cb *CircuitBreaker) transitionToClosed() {
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenCalls = 0

	cb.logger.Info("Circuit breaker transitioned to closed",
		zap.String("breaker", cb.name),
	)
}

// transitionToOpen 转换到开启状态
func (cb *CircuitBreaker) transitionToOpen() {
	cb.state = StateOpen
	cb.halfOpenCalls = 0

	cb.logger.Warn("Circuit breaker transitioned to open",
		zap.String("breaker", cb.name),
		zap.Int("failures", cb.failures),
		zap.Duration("reset_timeout", cb.resetTimeout),
	)
}

// transitionToHalfOpen 转换到半开状态
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.state = StateHalfOpen
	cb.halfOpenCalls = 0

	cb.logger.Info("Circuit breaker transitioned to half-open",
		zap.String("breaker", cb.name),
	)
}

// stateName 获取状态名称
func (cb *CircuitBreaker) stateName() string {
	switch cb.state {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
