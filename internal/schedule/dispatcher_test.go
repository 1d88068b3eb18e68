package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"GoalEngine/internal/cache"
	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []model.DeliveryMessage
	fail map[string]bool
}

func (p *recordingPublisher) PublishDelivery(_ context.Context, msg model.DeliveryMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[msg.Key] {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Messages() []model.DeliveryMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.DeliveryMessage(nil), p.msgs...)
}

func seedDue(t *testing.T, mem *notify.Memory) {
	t.Helper()
	ctx := context.Background()
	at, _ := model.ParseTimeOfDay("07:00")
	content := model.NotificationContent{UserID: "u1", GoalID: "g1", Title: "t", Body: "b"}

	content.Category = model.NotificationCategoryCheckInReminder
	if err := mem.RegisterDaily(ctx, "goal:g1:checkin_reminder:07:00", at, time.UTC, content); err != nil {
		t.Fatal(err)
	}
	content.Category = model.NotificationCategoryAchievement
	if err := mem.RegisterOneShot(ctx, "achievement:g1:abc", 10*time.Minute, content); err != nil {
		t.Fatal(err)
	}
	content.Category = model.NotificationCategoryReengagement
	if err := mem.RegisterOneShot(ctx, "reengagement:u1", 48*time.Hour, content); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchDue(t *testing.T) {
	start := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	mem := notify.NewMemory().WithClock(func() time.Time { return start })
	seedDue(t, mem)

	pub := &recordingPublisher{}
	d := NewDispatcher(mem, pub, cache.NewLocalLocker(), nil)
	d.now = func() time.Time { return start.Add(2 * time.Hour) }

	sent, err := d.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("DispatchDue: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 sent, got %d", sent)
	}

	msgs := pub.Messages()
	if msgs[0].Key != "achievement:g1:abc" || msgs[0].Action != model.DeliveryActionShow {
		t.Errorf("unexpected first message %+v", msgs[0])
	}
	if msgs[1].ScheduledFor != "2025-03-10T07:00:00Z" {
		t.Errorf("unexpected scheduled_for %q", msgs[1].ScheduledFor)
	}

	if _, ok := mem.Get("achievement:g1:abc"); ok {
		t.Error("fired one-shot should be removed")
	}
	daily, _ := mem.Get("goal:g1:checkin_reminder:07:00")
	if want := time.Date(2025, 3, 11, 7, 0, 0, 0, time.UTC); !daily.NextFireAt.Equal(want) {
		t.Errorf("daily advanced to %v, want %v", daily.NextFireAt, want)
	}
	if _, ok := mem.Get("reengagement:u1"); !ok {
		t.Error("future one-shot must not fire")
	}

	sent, _ = d.DispatchDue(context.Background())
	if sent != 0 {
		t.Errorf("second pass should find nothing due, sent %d", sent)
	}
}

func TestDispatchDue_PublishFailureRetried(t *testing.T) {
	start := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	mem := notify.NewMemory().WithClock(func() time.Time { return start })
	seedDue(t, mem)

	pub := &recordingPublisher{fail: map[string]bool{"achievement:g1:abc": true}}
	d := NewDispatcher(mem, pub, cache.NewLocalLocker(), nil)
	d.now = func() time.Time { return start.Add(2 * time.Hour) }

	if sent, _ := d.DispatchDue(context.Background()); sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}
	if _, ok := mem.Get("achievement:g1:abc"); !ok {
		t.Fatal("failed delivery must stay registered")
	}

	pub.mu.Lock()
	pub.fail = nil
	pub.mu.Unlock()
	if sent, _ := d.DispatchDue(context.Background()); sent != 1 {
		t.Errorf("expected the failed delivery to be retried, sent %d", sent)
	}
}

func TestDispatchDue_LockHeldElsewhere(t *testing.T) {
	mem := notify.NewMemory()
	seedDue(t, mem)

	locker := cache.NewLocalLocker()
	_, _ = locker.TryLock(context.Background(), dispatchLockKey, time.Minute)

	pub := &recordingPublisher{}
	d := NewDispatcher(mem, pub, locker, nil)
	d.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	sent, err := d.DispatchDue(context.Background())
	if err != nil || sent != 0 {
		t.Errorf("expected skip while locked, got sent=%d err=%v", sent, err)
	}
	if len(pub.Messages()) != 0 {
		t.Error("nothing should be published while another instance holds the lock")
	}
}
