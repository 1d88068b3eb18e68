package model

// PlanStatus 目标计划生成状态，由服务端维护，本地只观察
type PlanStatus string

const (
	PlanStatusNotStarted PlanStatus = "not_started"
	PlanStatusPending    PlanStatus = "pending"
	PlanStatusGenerating PlanStatus = "generating"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusFailed     PlanStatus = "failed"
)

// IsPolling 处于 pending / generating 时需要继续轮询
func (s PlanStatus) IsPolling() bool {
	return s == PlanStatusPending || s == PlanStatusGenerating
}

// IsTerminal completed / failed 为终态，轮询停止
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed
}

// Valid 是否为已知状态
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusNotStarted, PlanStatusPending, PlanStatusGenerating, PlanStatusCompleted, PlanStatusFailed:
		return true
	}
	return false
}

// PlanStatusResponse 后端计划状态响应
type PlanStatusResponse struct {
	GoalID string     `json:"goal_id"`
	Status PlanStatus `json:"status"`
}
