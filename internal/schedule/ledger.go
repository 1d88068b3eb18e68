package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"GoalEngine/internal/cache"
)

// goalLedger 某个目标当前注册过的提醒 key
type goalLedger struct {
	UserID string   `json:"user_id"`
	Keys   []string `json:"keys"`
}

func loadJSON(ctx context.Context, kv cache.KV, key string, out interface{}) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func storeJSON(ctx context.Context, kv cache.KV, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, string(raw))
}

func (s *ReminderScheduler) loadGoalLedger(ctx context.Context, goalID string) (goalLedger, error) {
	var l goalLedger
	_, err := loadJSON(ctx, s.kv, goalLedgerKey(goalID), &l)
	return l, err
}

func (s *ReminderScheduler) saveGoalLedger(ctx context.Context, goalID string, l goalLedger) error {
	if len(l.Keys) == 0 {
		return s.kv.Remove(ctx, goalLedgerKey(goalID))
	}
	return storeJSON(ctx, s.kv, goalLedgerKey(goalID), l)
}

func (s *ReminderScheduler) loadUserGoals(ctx context.Context, userID string) ([]string, error) {
	var goals []string
	_, err := loadJSON(ctx, s.kv, userLedgerKey(userID), &goals)
	return goals, err
}

func (s *ReminderScheduler) updateUserGoals(ctx context.Context, userID, goalID string, present bool) error {
	if userID == "" {
		return nil
	}
	goals, err := s.loadUserGoals(ctx, userID)
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(goals)+1)
	for _, g := range goals {
		set[g] = struct{}{}
	}
	if present {
		set[goalID] = struct{}{}
	} else {
		delete(set, goalID)
	}

	if len(set) == 0 {
		return s.kv.Remove(ctx, userLedgerKey(userID))
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return storeJSON(ctx, s.kv, userLedgerKey(userID), out)
}
