package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
)

func newOneShotFixture(now time.Time) (*OneShotScheduler, *notify.Memory, *notify.MemoryPermissions) {
	mem := notify.NewMemory().WithClock(func() time.Time { return now })
	perms := notify.NewMemoryPermissions(true)
	s := NewOneShotScheduler(mem, perms, cache.NewMemoryKV(), nil)
	return s, mem, perms
}

func TestScheduleAchievement(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s, mem, _ := newOneShotFixture(now)
	ctx := context.Background()

	s.ScheduleAchievement(ctx, "u1", "g1", "7-day streak!", 5)

	keys := mem.KeysWithPrefix("achievement:g1:")
	if len(keys) != 1 {
		t.Fatalf("expected one achievement, got %v", keys)
	}
	if hash := strings.TrimPrefix(keys[0], "achievement:g1:"); len(hash) != 12 {
		t.Errorf("expected a 12 character text hash, got %q", hash)
	}

	reg, _ := mem.Get(keys[0])
	if !reg.NextFireAt.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("expected fire at +5m, got %v", reg.NextFireAt)
	}
	if reg.Body != "7-day streak!" || reg.Kind != model.RegistrationKindOneShot {
		t.Errorf("unexpected registration %+v", reg)
	}
}

func TestScheduleAchievement_AnnouncedOnce(t *testing.T) {
	s, mem, _ := newOneShotFixture(time.Now())
	ctx := context.Background()

	s.ScheduleAchievement(ctx, "u1", "g1", "First check-in", 0)
	_ = mem.Cancel(ctx, mem.KeysWithPrefix("achievement:")[0])

	s.ScheduleAchievement(ctx, "u1", "g1", "First check-in", 0)
	if n := len(mem.Live()); n != 0 {
		t.Errorf("achievement was scheduled twice, %d live", n)
	}

	s.ScheduleAchievement(ctx, "u1", "g2", "First check-in", 0)
	s.ScheduleAchievement(ctx, "u1", "g1", "10 check-ins", 0)
	if n := len(mem.Live()); n != 2 {
		t.Errorf("distinct achievements should both schedule, got %d", n)
	}
}

func TestScheduleAchievement_NegativeDelay(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s, mem, _ := newOneShotFixture(now)

	s.ScheduleAchievement(context.Background(), "u1", "g1", "Done", -10)
	reg, _ := mem.Get(mem.KeysWithPrefix("achievement:")[0])
	if !reg.NextFireAt.Equal(now) {
		t.Errorf("negative delay should fire immediately, got %v", reg.NextFireAt)
	}
}

func TestScheduleAchievement_RefusedIsSilent(t *testing.T) {
	s, mem, _ := newOneShotFixture(time.Now())
	mem.Refuse(true)
	ctx := context.Background()

	s.ScheduleAchievement(ctx, "u1", "g1", "Done", 0)

	// 注册失败时不写已展示标记，之后还能再安排
	mem.Refuse(false)
	s.ScheduleAchievement(ctx, "u1", "g1", "Done", 0)
	if n := len(mem.Live()); n != 1 {
		t.Errorf("expected achievement after refusal cleared, got %d", n)
	}
}

func TestScheduleReengagement(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		delayHours int
		want       time.Duration
	}{
		{name: "explicit delay", delayHours: 48, want: 48 * time.Hour},
		{name: "zero uses default", delayHours: 0, want: 24 * time.Hour},
		{name: "negative uses default", delayHours: -3, want: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem, _ := newOneShotFixture(now)
			s.ScheduleReengagement(context.Background(), "u1", tt.delayHours)

			reg, ok := mem.Get("reengagement:u1")
			if !ok {
				t.Fatal("reengagement not scheduled")
			}
			if !reg.NextFireAt.Equal(now.Add(tt.want)) {
				t.Errorf("fire at %v, want %v", reg.NextFireAt, now.Add(tt.want))
			}
		})
	}
}

func TestScheduleReengagement_ReplacesPending(t *testing.T) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mem := notify.NewMemory().WithClock(func() time.Time { return current })
	s := NewOneShotScheduler(mem, notify.NewMemoryPermissions(true), cache.NewMemoryKV(), nil)
	ctx := context.Background()

	s.ScheduleReengagement(ctx, "u1", 24)
	current = current.Add(6 * time.Hour)
	s.ScheduleReengagement(ctx, "u1", 24)

	if n := len(mem.Live()); n != 1 {
		t.Fatalf("expected a single pending reengagement, got %d", n)
	}
	reg, _ := mem.Get("reengagement:u1")
	if !reg.NextFireAt.Equal(current.Add(24 * time.Hour)) {
		t.Errorf("reengagement was not pushed forward: %v", reg.NextFireAt)
	}

	s.CancelReengagement(ctx, "u1")
	s.CancelReengagement(ctx, "u1")
	if n := len(mem.Live()); n != 0 {
		t.Errorf("expected reengagement cancelled, got %d", n)
	}
}

func TestOneShot_PermissionDenied(t *testing.T) {
	s, mem, perms := newOneShotFixture(time.Now())
	ctx := context.Background()
	_ = perms.Set(ctx, "u1", false)

	s.ScheduleAchievement(ctx, "u1", "g1", "Done", 0)
	s.ScheduleReengagement(ctx, "u1", 0)

	if n := len(mem.Live()); n != 0 {
		t.Errorf("expected no registrations without permission, got %d", n)
	}
}
