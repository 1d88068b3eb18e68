package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"GoalEngine/internal/model"
)

// 注册 key 的格式是稳定的，重复注册同一个 key 等价于替换
func checkInReminderKey(goalID string, at model.TimeOfDay) string {
	return fmt.Sprintf("goal:%s:%s:%s", goalID, model.NotificationCategoryCheckInReminder, at)
}

func motivationCallKey(goalID string, at model.TimeOfDay) string {
	return fmt.Sprintf("goal:%s:%s:%s", goalID, model.NotificationCategoryMotivationCall, at)
}

func achievementKey(goalID, text string) string {
	return fmt.Sprintf("achievement:%s:%s", goalID, textHash(text))
}

func reengagementKey(userID string) string {
	return "reengagement:" + userID
}

// textHash 成就文案的短哈希
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

// KV 中的簿记 key
func goalLedgerKey(goalID string) string {
	return "reminders:goal:" + goalID
}

func userLedgerKey(userID string) string {
	return "reminders:user:" + userID
}

func achievementShownKey(goalID, text string) string {
	return "achievement_shown:" + goalID + ":" + textHash(text)
}
