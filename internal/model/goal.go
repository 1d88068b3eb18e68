package model

import (
	"fmt"
	"time"
)

// Goal 用户目标，来自后端
type Goal struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	ReminderTimes []string   `json:"reminder_times"` // HH:MM，有序，通常不超过 5 个
	Timezone      string     `json:"timezone"`
	IsActive      bool       `json:"is_active"`
	PlanStatus    PlanStatus `json:"plan_status"`
}

// HasReminders 是否配置了提醒时间
func (g Goal) HasReminders() bool {
	return len(g.ReminderTimes) > 0
}

// Location 目标存储的时区，空值按 UTC 处理
func (g Goal) Location() (*time.Location, error) {
	if g.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// GoalList 后端目标列表响应
type GoalList struct {
	Items []Goal `json:"items"`
}

// TimeOfDay 一天中的时刻，精确到分钟
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay 解析 HH:MM，兼容 HH:MM:SS（秒会被忽略）
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On 返回 loc 时区下 day 当天的该时刻
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Next 返回 now 之后（严格大于）loc 时区下该时刻的下一次出现
func (t TimeOfDay) Next(now time.Time, loc *time.Location) time.Time {
	next := t.On(now, loc)
	if !next.After(now) {
		d := now.In(loc).AddDate(0, 0, 1)
		next = time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
	}
	return next
}
