// Package streak 计算目标当前的连续打卡天数。
//
// 连续天数永远由后端打卡历史重新计算，不做增量存储。
package streak

import (
	"sort"
	"time"

	"GoalEngine/internal/model"
)

// Compute 返回截至 today 的当前连续天数。
//
// 前置条件：history 必须按日期倒序排列（后端本身按倒序返回，必要时先调用 SortByDateDesc）。
// 所有日期按各自时区的日历日比较，时分秒会被忽略。
func Compute(history []model.CheckIn, today time.Time) int {
	day := truncate(today)

	var (
		count    int
		started  bool
		previous time.Time
	)

	for _, c := range history {
		d := truncate(c.Date)

		if !started {
			if d.After(day) {
				continue
			}
			// 今天还没有记录，连续已中断
			if d.Before(day) {
				return 0
			}
			started = true
			previous = d
			switch {
			case c.Status == model.CheckInStatusCompleted:
				count = 1
			case c.Status.PassesThrough():
			default:
				return 0
			}
			continue
		}

		if !d.Equal(previous.AddDate(0, 0, -1)) {
			break
		}
		previous = d

		if c.Status == model.CheckInStatusCompleted {
			count++
			continue
		}
		if !c.Status.PassesThrough() {
			break
		}
	}

	return count
}

// SortByDateDesc 按日期倒序原地排序，同一天保持原有顺序
func SortByDateDesc(history []model.CheckIn) {
	sort.SliceStable(history, func(i, j int) bool {
		return truncate(history[i].Date).After(truncate(history[j].Date))
	})
}

// truncate 截断到本地日历日，统一放到 UTC 便于比较
func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
