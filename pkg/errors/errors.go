package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	BackendFailure  = Definition{Code: "BACKEND_UNAVAILABLE", Message: "Backend unavailable"}
)

// 目标模块错误。
var (
	GoalNotFound        = Definition{Code: "GOAL_NOT_FOUND", Message: "Goal not found"}
	GoalNotActive       = Definition{Code: "GOAL_NOT_ACTIVE", Message: "Goal not active"}
	ReminderTimeInvalid = Definition{Code: "REMINDER_TIME_INVALID", Message: "Reminder time invalid"}
	TimezoneInvalid     = Definition{Code: "TIMEZONE_INVALID", Message: "Timezone invalid"}
)

// 计划生成模块错误。
var (
	PlanRetryFailed  = Definition{Code: "PLAN_RETRY_FAILED", Message: "Plan retry failed"}
	PlanNotTracked   = Definition{Code: "PLAN_NOT_TRACKED", Message: "Plan not tracked"}
	PlanStatusLookup = Definition{Code: "PLAN_STATUS_UNKNOWN", Message: "Plan status unknown"}
)

// 通知模块错误。
var (
	NotificationPermissionDenied = Definition{Code: "NOTIFICATION_PERMISSION_DENIED", Message: "Notification permission denied"}
	PushPayloadInvalid           = Definition{Code: "PUSH_PAYLOAD_INVALID", Message: "Push payload invalid"}
)

// ErrTokenGeneratorNotInitialized 服务间 token 未初始化
var ErrTokenGeneratorNotInitialized = fmt.Errorf("token generator not initialized")

// SkipMessageError 表示消息应当被确认但不再处理（重复消息、无效载荷）
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// As 从错误链中取出 Definition
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}
