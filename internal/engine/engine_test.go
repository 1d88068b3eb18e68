package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
	"GoalEngine/internal/relay"
	"GoalEngine/pkg/errors"
)

type fakeBackend struct {
	mu       sync.Mutex
	goals    map[string]model.Goal
	statuses map[string][]model.PlanStatus
	polls    map[string]int
	history  []model.CheckIn
}

func newFakeBackend(goals ...model.Goal) *fakeBackend {
	b := &fakeBackend{
		goals:    make(map[string]model.Goal),
		statuses: make(map[string][]model.PlanStatus),
		polls:    make(map[string]int),
	}
	for _, g := range goals {
		b.goals[g.ID] = g
	}
	return b
}

func (b *fakeBackend) GetPlanStatus(_ context.Context, _, goalID string) (model.PlanStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := b.statuses[goalID]
	if len(seq) == 0 {
		return model.PlanStatusCompleted, nil
	}
	i := b.polls[goalID]
	b.polls[goalID]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

func (b *fakeBackend) RetryPlanGeneration(_ context.Context, _, _ string) (model.PlanStatus, error) {
	return "", stderrors.New("retry unavailable")
}

func (b *fakeBackend) GetGoal(_ context.Context, userID, goalID string) (model.Goal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.goals[goalID]
	if !ok || g.UserID != userID {
		return model.Goal{}, errors.GoalNotFound
	}
	return g, nil
}

func (b *fakeBackend) ListCheckIns(_ context.Context, _, _ string) ([]model.CheckIn, error) {
	return b.history, nil
}

func (b *fakeBackend) ListActiveGoals(_ context.Context, userID string) ([]model.Goal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Goal
	for _, g := range b.goals {
		if g.UserID == userID && g.IsActive {
			out = append(out, g)
		}
	}
	return out, nil
}

type eventRecorder struct {
	mu    sync.Mutex
	goals []string
}

func (r *eventRecorder) PublishGoalActivated(_ context.Context, userID, goalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals = append(r.goals, userID+"/"+goalID)
	return nil
}

func (r *eventRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.goals...)
}

func (r *eventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.goals)
}

type fixture struct {
	backend *fakeBackend
	mem     *notify.Memory
	perms   *notify.MemoryPermissions
	inv     *cache.MemoryInvalidator
	events  *eventRecorder
	engine  *Engine
}

func newFixture(t *testing.T, goals ...model.Goal) *fixture {
	t.Helper()
	f := &fixture{
		backend: newFakeBackend(goals...),
		mem:     notify.NewMemory(),
		perms:   notify.NewMemoryPermissions(true),
		inv:     cache.NewMemoryInvalidator(),
		events:  &eventRecorder{},
	}
	f.engine = New(Deps{
		Backend:      f.backend,
		Notifier:     f.mem,
		Permissions:  f.perms,
		KV:           cache.NewMemoryKV(),
		Invalidator:  f.inv,
		Events:       f.events,
		PollInterval: 5 * time.Millisecond,
	})
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) liveFor(userID string) int {
	n := 0
	for _, r := range f.mem.Live() {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func goal(id string, times ...string) model.Goal {
	return model.Goal{
		ID:            id,
		UserID:        "u1",
		Title:         "Read daily",
		ReminderTimes: times,
		Timezone:      "America/New_York",
		IsActive:      true,
		PlanStatus:    model.PlanStatusCompleted,
	}
}

func TestEngine_GoalCreatedActivatesAfterPlanCompletes(t *testing.T) {
	g := goal("g1", "07:30", "19:00")
	f := newFixture(t, g)
	f.backend.statuses["g1"] = []model.PlanStatus{model.PlanStatusPending, model.PlanStatusGenerating, model.PlanStatusCompleted}

	if err := f.engine.OnGoalCreated(context.Background(), g); err != nil {
		t.Fatalf("OnGoalCreated returned %v", err)
	}

	waitFor(t, "plan completion", func() bool {
		status, _, err := f.engine.PlanStatus("u1", "g1")
		return err == nil && status == model.PlanStatusCompleted
	})

	if got := f.mem.Count("g1", model.NotificationCategoryCheckInReminder); got != 1 {
		t.Errorf("expected 1 check-in reminder, got %d", got)
	}
	if got := f.mem.Count("g1", model.NotificationCategoryMotivationCall); got != 2 {
		t.Errorf("expected 2 motivation calls, got %d", got)
	}
	if got := len(f.inv.Calls()); got != 1 {
		t.Errorf("expected 1 cache invalidation, got %d", got)
	}
	if got := f.events.Count(); got != 1 {
		t.Errorf("expected 1 activation event, got %d", got)
	}
}

func TestEngine_GoalCreatedRejectsIncompleteGoal(t *testing.T) {
	f := newFixture(t)
	err := f.engine.OnGoalCreated(context.Background(), model.Goal{ID: "g1"})
	if !stderrors.Is(err, errors.InvalidRequest) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestEngine_GoalUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := goal("g1", "08:00")
	if err := f.engine.OnGoalUpdated(ctx, g); err != nil {
		t.Fatal(err)
	}
	if got := f.mem.Count("g1", model.NotificationCategoryMotivationCall); got != 1 {
		t.Fatalf("expected 1 motivation call, got %d", got)
	}

	g.IsActive = false
	if err := f.engine.OnGoalUpdated(ctx, g); err != nil {
		t.Fatal(err)
	}
	if got := len(f.mem.KeysWithPrefix("goal:g1:")); got != 0 {
		t.Errorf("inactive goal should have no reminders, got %d", got)
	}
}

func TestEngine_GoalArchivedAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.OnGoalUpdated(ctx, goal("g1", "08:00"))
	f.engine.OnGoalUpdated(ctx, goal("g2", "09:00"))

	f.engine.OnGoalArchived(ctx, "u1", "g1")
	f.engine.OnGoalDeleted(ctx, "u1", "g2")

	if got := len(f.mem.Live()); got != 0 {
		t.Errorf("expected no live registrations, got %d", got)
	}
}

func TestEngine_DeleteCancelsAchievements(t *testing.T) {
	tests := []struct {
		name   string
		remove func(e *Engine, ctx context.Context)
	}{
		{"deleted", func(e *Engine, ctx context.Context) { e.OnGoalDeleted(ctx, "u1", "g1") }},
		{"archived", func(e *Engine, ctx context.Context) { e.OnGoalArchived(ctx, "u1", "g1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, goal("g1", "08:00"), goal("g2", "09:00"))
			ctx := context.Background()

			f.engine.OnGoalUpdated(ctx, goal("g1", "08:00"))
			f.engine.OnGoalUpdated(ctx, goal("g2", "09:00"))
			if err := f.engine.ScheduleAchievement(ctx, "u1", "g1", "7 day streak!", 30); err != nil {
				t.Fatal(err)
			}
			if err := f.engine.ScheduleAchievement(ctx, "u1", "g2", "First check-in", 30); err != nil {
				t.Fatal(err)
			}

			tt.remove(f.engine, ctx)

			if got := f.mem.Count("g1", model.NotificationCategoryAchievement); got != 0 {
				t.Errorf("g1 still has %d achievement registrations", got)
			}
			if got := len(f.mem.KeysWithPrefix("goal:g1:")); got != 0 {
				t.Errorf("g1 still has %d reminders", got)
			}
			if got := f.mem.Count("g2", model.NotificationCategoryAchievement); got != 1 {
				t.Errorf("other goal should keep its achievement, got %d", got)
			}
		})
	}
}

func TestEngine_ForeignUserCannotTouchGoal(t *testing.T) {
	f := newFixture(t, goal("g1", "08:00"))
	ctx := context.Background()

	f.engine.OnGoalUpdated(ctx, goal("g1", "08:00"))
	if err := f.engine.ScheduleAchievement(ctx, "u1", "g1", "7 day streak!", 30); err != nil {
		t.Fatal(err)
	}
	before := f.liveFor("u1")

	f.engine.OnGoalArchived(ctx, "intruder", "g1")
	f.engine.OnGoalDeleted(ctx, "intruder", "g1")
	if got := f.liveFor("u1"); got != before {
		t.Errorf("foreign archive changed u1 registrations: %d -> %d", before, got)
	}

	err := f.engine.ScheduleAchievement(ctx, "intruder", "g1", "Stolen", 0)
	if !stderrors.Is(err, errors.GoalNotFound) {
		t.Fatalf("expected GoalNotFound, got %v", err)
	}
	if got := f.liveFor("intruder"); got != 0 {
		t.Errorf("intruder should own nothing, got %d", got)
	}
}

func TestEngine_ActivationKeepsOwner(t *testing.T) {
	g := goal("g1", "07:30")
	f := newFixture(t, g)
	f.backend.statuses["g1"] = []model.PlanStatus{model.PlanStatusPending, model.PlanStatusGenerating, model.PlanStatusCompleted}
	ctx := context.Background()

	if err := f.engine.OnGoalCreated(ctx, g); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.OnGoalCreated(ctx, model.Goal{ID: "g1", UserID: "attacker"}); err != nil {
		t.Fatal(err)
	}

	for _, user := range []string{"u1", "attacker"} {
		user := user
		waitFor(t, user+" plan completion", func() bool {
			status, _, err := f.engine.PlanStatus(user, "g1")
			return err == nil && status == model.PlanStatusCompleted
		})
	}

	if got := f.events.Events(); len(got) != 1 || got[0] != "u1/g1" {
		t.Errorf("expected a single activation for u1/g1, got %v", got)
	}
	for _, r := range f.mem.Live() {
		if r.UserID != "u1" {
			t.Errorf("registration %s belongs to %q", r.Key, r.UserID)
		}
	}
	if got := f.mem.Count("g1", model.NotificationCategoryMotivationCall); got != 1 {
		t.Errorf("expected u1's reminder, got %d", got)
	}
}

func TestEngine_ResumeReconcilesAndSchedulesReengagement(t *testing.T) {
	active := goal("g1", "08:00")
	f := newFixture(t, active)
	ctx := context.Background()

	if err := f.engine.Resume(ctx, "u1"); err != nil {
		t.Fatalf("Resume returned %v", err)
	}
	if got := f.mem.Count("g1", model.NotificationCategoryMotivationCall); got != 1 {
		t.Errorf("expected reminders for the active goal, got %d", got)
	}
	if _, ok := f.mem.Get("reengagement:u1"); !ok {
		t.Error("expected a pending re-engagement notification")
	}

	// 再次恢复不会产生重复
	if err := f.engine.Resume(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := f.liveFor("u1"); got != 3 {
		t.Errorf("expected 3 live registrations after resuming twice, got %d", got)
	}
}

func TestEngine_LogoutCancelsEverything(t *testing.T) {
	f := newFixture(t, goal("g1", "08:00"))
	ctx := context.Background()

	if err := f.engine.Resume(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ScheduleAchievement(ctx, "u1", "g1", "7 day streak!", 5); err != nil {
		t.Fatal(err)
	}
	f.engine.HandleNextUp(ctx, model.NextUpPayload{
		UserID: "u1", Action: "start", DayKey: "2025-03-01",
		NextTaskID: "t1", TaskTitle: "Stretch", CompletedCount: "0", TotalCount: "2",
	})
	if f.liveFor("u1") == 0 {
		t.Fatal("expected registrations before logout")
	}

	f.engine.Logout(ctx, "u1")

	if got := f.liveFor("u1"); got != 0 {
		t.Errorf("expected no live registrations after logout, got %d", got)
	}
}

func TestEngine_PermissionToggle(t *testing.T) {
	f := newFixture(t, goal("g1", "08:00", "20:00"))
	ctx := context.Background()

	if err := f.engine.SetNotificationPermission(ctx, "u1", false); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Resume(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := f.liveFor("u1"); got != 0 {
		t.Fatalf("expected nothing scheduled without permission, got %d", got)
	}

	if err := f.engine.SetNotificationPermission(ctx, "u1", true); err != nil {
		t.Fatal(err)
	}
	if got := f.mem.Count("g1", model.NotificationCategoryMotivationCall); got != 2 {
		t.Errorf("expected reminders after granting permission, got %d", got)
	}

	if err := f.engine.SetNotificationPermission(ctx, "u1", false); err != nil {
		t.Fatal(err)
	}
	if got := f.liveFor("u1"); got != 0 {
		t.Errorf("expected all notifications cancelled after revoking, got %d", got)
	}
}

func TestEngine_PlanStatusUntracked(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.engine.PlanStatus("u1", "missing"); !stderrors.Is(err, errors.PlanNotTracked) {
		t.Fatalf("expected PlanNotTracked, got %v", err)
	}
}

func TestEngine_RetryPlanFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RetryPlan(context.Background(), "u1", "g1")
	if !stderrors.Is(err, errors.PlanRetryFailed) {
		t.Fatalf("expected PlanRetryFailed, got %v", err)
	}
}

func TestEngine_HandleNextUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got := f.engine.HandleNextUp(ctx, model.NextUpPayload{
		UserID: "u1", Action: "update", DayKey: "2025-03-01",
		NextTaskID: "t2", TaskTitle: "Walk", CompletedCount: "1", TotalCount: "3",
	})
	if got != relay.OutcomeShown {
		t.Fatalf("expected shown, got %s", got)
	}
	if _, ok := f.mem.Get(relay.SlotKey("u1")); !ok {
		t.Error("expected the ongoing slot to be live")
	}
}

func TestEngine_Streak(t *testing.T) {
	f := newFixture(t, model.Goal{ID: "g1", UserID: "u1", Timezone: "UTC"})
	today := time.Now().UTC()
	f.backend.history = []model.CheckIn{
		{Date: today, Status: model.CheckInStatusCompleted},
		{Date: today.AddDate(0, 0, -1), Status: model.CheckInStatusCompleted},
	}

	got, err := f.engine.Streak(context.Background(), "u1", "g1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("expected streak 2, got %d", got)
	}
}
