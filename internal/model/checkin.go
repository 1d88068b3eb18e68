package model

import "time"

// CheckInStatus 打卡状态枚举
type CheckInStatus string

const (
	CheckInStatusCompleted CheckInStatus = "completed" // 已完成
	CheckInStatusSkipped   CheckInStatus = "skipped"   // 主动跳过
	CheckInStatusRestDay   CheckInStatus = "rest_day"  // 休息日
	CheckInStatusMissed    CheckInStatus = "missed"    // 错过
	CheckInStatusPending   CheckInStatus = "pending"   // 待打卡
)

// PassesThrough 休息日与待打卡不计入连续天数，但也不会打断连续
func (s CheckInStatus) PassesThrough() bool {
	return s == CheckInStatusRestDay || s == CheckInStatusPending
}

// CheckIn 某个目标一天的打卡记录，由后端提供，本地只读
type CheckIn struct {
	Date   time.Time     `json:"date"`
	Status CheckInStatus `json:"status"`
}

// CheckInRecord 后端返回的打卡记录，日期为 YYYY-MM-DD
type CheckInRecord struct {
	Date   string        `json:"date"`
	Status CheckInStatus `json:"status"`
}

// ToCheckIn 按 loc 解析日期
func (r CheckInRecord) ToCheckIn(loc *time.Location) (CheckIn, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, r.Date, loc)
	if err != nil {
		return CheckIn{}, err
	}
	return CheckIn{Date: d, Status: r.Status}, nil
}

// CheckInList 后端打卡历史列表响应，按日期倒序
type CheckInList struct {
	Items []CheckInRecord `json:"items"`
}

// DateLayout ISO 日历日期
const DateLayout = "2006-01-02"
