package relay

import (
	"context"
	"testing"

	"GoalEngine/internal/model"
	"GoalEngine/internal/notify"
)

func payload(action, completed, total string) model.NextUpPayload {
	return model.NextUpPayload{
		UserID:         "u1",
		Action:         action,
		DayKey:         "2025-03-10",
		NextTaskID:     "task-2",
		TaskTitle:      "Stretch for 10 minutes",
		Emoji:          "🧘",
		CompletedCount: completed,
		TotalCount:     total,
	}
}

func newTestHandler() (*Handler, *notify.Memory) {
	mem := notify.NewMemory()
	return NewHandler(NewOngoingSlot(mem), nil), mem
}

func TestHandle_StartShowsSlot(t *testing.T) {
	h, mem := newTestHandler()

	if got := h.Handle(context.Background(), payload("start", "1", "3")); got != OutcomeShown {
		t.Fatalf("expected shown, got %s", got)
	}

	reg, ok := mem.Get("next_up_ongoing:u1")
	if !ok {
		t.Fatal("ongoing notification not created")
	}
	if reg.Title != "🧘 Stretch for 10 minutes" || reg.Body != "1 of 3 done today" {
		t.Errorf("unexpected content %q / %q", reg.Title, reg.Body)
	}
	if reg.Kind != model.RegistrationKindOngoing {
		t.Errorf("expected ongoing kind, got %s", reg.Kind)
	}
}

func TestHandle_UpdateReplacesNeverAdds(t *testing.T) {
	h, mem := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, payload("start", "0", "4"))
	h.Handle(ctx, payload("update", "1", "4"))
	p := payload("update", "2", "4")
	p.TaskTitle = "Drink water"
	h.Handle(ctx, p)

	if n := mem.Count("", model.NotificationCategoryNextUpOngoing); n != 1 {
		t.Fatalf("expected one ongoing notification, got %d", n)
	}
	reg, _ := mem.Get("next_up_ongoing:u1")
	if reg.Body != "2 of 4 done today" {
		t.Errorf("slot not replaced, body %q", reg.Body)
	}
}

func TestHandle_ClearCases(t *testing.T) {
	tests := []struct {
		name string
		p    model.NextUpPayload
	}{
		{name: "end", p: payload("end", "2", "4")},
		{name: "all done", p: payload("update", "4", "4")},
		{name: "over done", p: payload("update", "5", "4")},
		{name: "zero total", p: payload("start", "0", "0")},
		{name: "negative total", p: payload("start", "0", "-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mem := newTestHandler()
			ctx := context.Background()
			h.Handle(ctx, payload("start", "1", "4"))

			if got := h.Handle(ctx, tt.p); got != OutcomeCleared {
				t.Fatalf("expected cleared, got %s", got)
			}
			if _, ok := mem.Get("next_up_ongoing:u1"); ok {
				t.Error("ongoing notification should be cleared")
			}
		})
	}
}

func TestHandle_CompletedNeverCreates(t *testing.T) {
	h, mem := newTestHandler()
	for _, c := range []string{"3", "4", "10"} {
		h.Handle(context.Background(), payload("start", c, "3"))
		if mem.Shown != 0 {
			t.Fatalf("completed_count=%s created a notification", c)
		}
	}
}

func TestHandle_InvalidPayloadsDropped(t *testing.T) {
	mutate := func(f func(*model.NextUpPayload)) model.NextUpPayload {
		p := payload("update", "1", "3")
		f(&p)
		return p
	}

	tests := []struct {
		name string
		p    model.NextUpPayload
	}{
		{name: "bad day key", p: mutate(func(p *model.NextUpPayload) { p.DayKey = "10/03/2025" })},
		{name: "day key with time", p: mutate(func(p *model.NextUpPayload) { p.DayKey = "2025-03-10T00:00" })},
		{name: "missing task id", p: mutate(func(p *model.NextUpPayload) { p.NextTaskID = "" })},
		{name: "missing title", p: mutate(func(p *model.NextUpPayload) { p.TaskTitle = "" })},
		{name: "non integer completed", p: mutate(func(p *model.NextUpPayload) { p.CompletedCount = "one" })},
		{name: "non integer total", p: mutate(func(p *model.NextUpPayload) { p.TotalCount = "3.5" })},
		{name: "unknown action", p: mutate(func(p *model.NextUpPayload) { p.Action = "pause" })},
		{name: "missing user", p: mutate(func(p *model.NextUpPayload) { p.UserID = "" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mem := newTestHandler()
			ctx := context.Background()
			h.Handle(ctx, payload("start", "0", "3"))

			if got := h.Handle(ctx, tt.p); got != OutcomeDropped {
				t.Fatalf("expected dropped, got %s", got)
			}
			reg, ok := mem.Get("next_up_ongoing:u1")
			if !ok || reg.Body != "0 of 3 done today" {
				t.Error("invalid payload must leave the slot untouched")
			}
		})
	}
}

// panicNotifier 模拟下游崩溃
type panicNotifier struct {
	*notify.Memory
}

func (panicNotifier) CreateOrReplace(context.Context, string, model.NotificationContent) error {
	panic("registry exploded")
}

func TestHandle_NeverPanics(t *testing.T) {
	h := NewHandler(NewOngoingSlot(panicNotifier{notify.NewMemory()}), nil)
	if got := h.Handle(context.Background(), payload("start", "0", "3")); got != OutcomeDropped {
		t.Errorf("expected dropped after recovering, got %s", got)
	}
}
