package model

// NextUpAction 推送动作
type NextUpAction string

const (
	NextUpActionStart  NextUpAction = "start"
	NextUpActionUpdate NextUpAction = "update"
	NextUpActionEnd    NextUpAction = "end"
)

// NextUpPayload 服务端推送的 "next up" 原始载荷，推送 data 字段全部是字符串
type NextUpPayload struct {
	UserID         string `json:"user_id"`
	Action         string `json:"action"`
	DayKey         string `json:"day_key"`
	NextTaskID     string `json:"next_task_id"`
	TaskTitle      string `json:"task_title"`
	Emoji          string `json:"emoji,omitempty"`
	CompletedCount string `json:"completed_count"`
	TotalCount     string `json:"total_count"`
}

// NextUpState 常驻通知当前展示的内容
type NextUpState struct {
	DayKey         string `json:"day_key"`
	NextTaskID     string `json:"next_task_id"`
	TaskTitle      string `json:"task_title"`
	Emoji          string `json:"emoji,omitempty"`
	CompletedCount int    `json:"completed_count"`
	TotalCount     int    `json:"total_count"`
}

// Remaining 是否还有未完成的任务
func (s NextUpState) Remaining() bool {
	return s.TotalCount > 0 && s.CompletedCount < s.TotalCount
}
