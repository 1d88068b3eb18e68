package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// NotificationCategory 通知类别枚举
type NotificationCategory string

const (
	NotificationCategoryCheckInReminder NotificationCategory = "checkin_reminder" // 打卡提醒
	NotificationCategoryMotivationCall  NotificationCategory = "motivation_call"  // AI 激励
	NotificationCategoryAchievement     NotificationCategory = "achievement"      // 成就解锁
	NotificationCategoryReengagement    NotificationCategory = "reengagement"     // 召回
	NotificationCategoryNextUpOngoing   NotificationCategory = "next_up_ongoing"  // 进行中任务
)

// RegistrationKind 注册方式
type RegistrationKind string

const (
	RegistrationKindDaily   RegistrationKind = "daily"    // 每日重复
	RegistrationKindOneShot RegistrationKind = "one_shot" // 延迟一次
	RegistrationKindOngoing RegistrationKind = "ongoing"  // 常驻，立即展示
)

// NotificationContent 通知内容
type NotificationContent struct {
	UserID   string               `json:"user_id"`
	GoalID   string               `json:"goal_id,omitempty"`
	Category NotificationCategory `json:"category"`
	Title    string               `json:"title"`
	Body     string               `json:"body"`
	Data     StringMap            `json:"data,omitempty"`
}

// Registration 通知注册表，同一个 key 只会存在一条记录
type Registration struct {
	BaseModel
	Key        string               `gorm:"type:varchar(191);uniqueIndex;not null" json:"key"`
	UserID     string               `gorm:"type:varchar(64);not null;index:idx_notification_registrations_user" json:"user_id"`
	GoalID     string               `gorm:"type:varchar(64);not null;default:'';index:idx_notification_registrations_goal" json:"goal_id"`
	Category   NotificationCategory `gorm:"type:varchar(32);not null" json:"category"`
	Kind       RegistrationKind     `gorm:"type:varchar(16);not null" json:"kind"`
	TimeOfDay  string               `gorm:"type:varchar(5);not null;default:''" json:"time_of_day"`
	Timezone   string               `gorm:"type:varchar(64);not null;default:''" json:"timezone"`
	NextFireAt time.Time            `gorm:"type:timestamptz;not null;index:idx_notification_registrations_due" json:"next_fire_at"`
	Title      string               `gorm:"type:varchar(255);not null;default:''" json:"title"`
	Body       string               `gorm:"type:text;not null;default:''" json:"body"`
	Data       StringMap            `gorm:"type:jsonb" json:"data"`
}

// TableName 指定表名
func (Registration) TableName() string {
	return "notification_registrations"
}

// Content 还原通知内容
func (r Registration) Content() NotificationContent {
	return NotificationContent{
		UserID:   r.UserID,
		GoalID:   r.GoalID,
		Category: r.Category,
		Title:    r.Title,
		Body:     r.Body,
		Data:     r.Data,
	}
}

// StringMap 自定义 JSONB 类型，推送数据字段都是字符串
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to unmarshal JSONB value")
	}
	return json.Unmarshal(bytes, m)
}
