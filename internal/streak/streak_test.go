package streak

import (
	"math/rand"
	"testing"
	"time"

	"GoalEngine/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func entry(date string, status model.CheckInStatus) model.CheckIn {
	return model.CheckIn{Date: day(date), Status: status}
}

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		history []model.CheckIn
		today   string
		want    int
	}{
		{
			name:  "empty history",
			today: "2025-02-03",
			want:  0,
		},
		{
			name: "rest day passes through",
			history: []model.CheckIn{
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-02", model.CheckInStatusRestDay),
				entry("2025-02-01", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  2,
		},
		{
			name:    "skipped today",
			history: []model.CheckIn{entry("2025-02-03", model.CheckInStatusSkipped)},
			today:   "2025-02-03",
			want:    0,
		},
		{
			name:    "missed today",
			history: []model.CheckIn{entry("2025-02-03", model.CheckInStatusMissed)},
			today:   "2025-02-03",
			want:    0,
		},
		{
			name: "no entry for today",
			history: []model.CheckIn{
				entry("2025-02-02", model.CheckInStatusCompleted),
				entry("2025-02-01", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  0,
		},
		{
			name: "pending today keeps scanning",
			history: []model.CheckIn{
				entry("2025-02-03", model.CheckInStatusPending),
				entry("2025-02-02", model.CheckInStatusCompleted),
				entry("2025-02-01", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  2,
		},
		{
			name: "future entries are ignored",
			history: []model.CheckIn{
				entry("2025-02-05", model.CheckInStatusMissed),
				entry("2025-02-04", model.CheckInStatusCompleted),
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-02", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  2,
		},
		{
			name: "gap stops the scan",
			history: []model.CheckIn{
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-02", model.CheckInStatusCompleted),
				entry("2025-01-30", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  2,
		},
		{
			name: "missed breaks continuation",
			history: []model.CheckIn{
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-02", model.CheckInStatusMissed),
				entry("2025-02-01", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  1,
		},
		{
			name: "pending before today passes through",
			history: []model.CheckIn{
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-02", model.CheckInStatusPending),
				entry("2025-02-01", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  2,
		},
		{
			name: "month boundary",
			history: []model.CheckIn{
				entry("2025-03-01", model.CheckInStatusCompleted),
				entry("2025-02-28", model.CheckInStatusCompleted),
				entry("2025-02-27", model.CheckInStatusCompleted),
			},
			today: "2025-03-01",
			want:  3,
		},
		{
			name: "duplicate date stops the scan",
			history: []model.CheckIn{
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-03", model.CheckInStatusCompleted),
				entry("2025-02-02", model.CheckInStatusCompleted),
			},
			today: "2025-02-03",
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.history, day(tt.today))
			if got != tt.want {
				t.Errorf("Compute() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCompute_IgnoresTimeOfDayAndOffset(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	history := []model.CheckIn{
		{Date: time.Date(2025, 2, 3, 23, 59, 0, 0, tokyo), Status: model.CheckInStatusCompleted},
		{Date: time.Date(2025, 2, 2, 0, 1, 0, 0, time.UTC), Status: model.CheckInStatusCompleted},
	}
	today := time.Date(2025, 2, 3, 7, 30, 0, 0, tokyo)

	if got := Compute(history, today); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestSortByDateDesc(t *testing.T) {
	history := []model.CheckIn{
		entry("2025-02-01", model.CheckInStatusCompleted),
		entry("2025-02-03", model.CheckInStatusCompleted),
		entry("2025-02-02", model.CheckInStatusRestDay),
	}
	SortByDateDesc(history)

	want := []string{"2025-02-03", "2025-02-02", "2025-02-01"}
	for i, w := range want {
		if got := history[i].Date.Format(model.DateLayout); got != w {
			t.Errorf("index %d: expected %s, got %s", i, w, got)
		}
	}
	if got := Compute(history, day("2025-02-03")); got != 2 {
		t.Errorf("expected streak 2 after sorting, got %d", got)
	}
}

var allStatuses = []model.CheckInStatus{
	model.CheckInStatusCompleted,
	model.CheckInStatusSkipped,
	model.CheckInStatusRestDay,
	model.CheckInStatusMissed,
	model.CheckInStatusPending,
}

// randomHistory 生成从 start 开始倒序、随机缺天的历史
func randomHistory(r *rand.Rand, start time.Time, n int) []model.CheckIn {
	history := make([]model.CheckIn, 0, n)
	d := start
	for i := 0; i < n; i++ {
		if r.Intn(6) == 0 {
			d = d.AddDate(0, 0, -1)
		}
		history = append(history, model.CheckIn{Date: d, Status: allStatuses[r.Intn(len(allStatuses))]})
		d = d.AddDate(0, 0, -1)
	}
	return history
}

func TestCompute_NoEntryTodayIsZero(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	today := day("2025-06-15")

	for i := 0; i < 500; i++ {
		history := randomHistory(r, today.AddDate(0, 0, -1-r.Intn(3)), r.Intn(20))
		if got := Compute(history, today); got != 0 {
			t.Fatalf("iteration %d: expected 0 without an entry for today, got %d", i, got)
		}
	}
}

func TestCompute_ConsecutiveCompletedDays(t *testing.T) {
	today := day("2025-06-15")

	for n := 0; n < 40; n++ {
		history := make([]model.CheckIn, 0, n+1)
		for i := 0; i <= n; i++ {
			history = append(history, model.CheckIn{
				Date:   today.AddDate(0, 0, -i),
				Status: model.CheckInStatusCompleted,
			})
		}
		if got := Compute(history, today); got != n+1 {
			t.Fatalf("n=%d: expected %d, got %d", n, n+1, got)
		}
	}
}

func TestCompute_PassThroughNeverReducesStreak(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	today := day("2025-06-15")

	for i := 0; i < 300; i++ {
		n := 3 + r.Intn(15)
		history := make([]model.CheckIn, 0, n)
		for j := 0; j < n; j++ {
			history = append(history, model.CheckIn{Date: today.AddDate(0, 0, -j), Status: model.CheckInStatusCompleted})
		}

		idx := 1 + r.Intn(n-2)
		with := append([]model.CheckIn(nil), history...)
		if r.Intn(2) == 0 {
			with[idx].Status = model.CheckInStatusRestDay
		} else {
			with[idx].Status = model.CheckInStatusPending
		}

		without := append(append([]model.CheckIn(nil), history[:idx]...), history[idx+1:]...)

		if Compute(with, today) < Compute(without, today) {
			t.Fatalf("iteration %d: pass-through entry at %d reduced the streak", i, idx)
		}
		if got := Compute(with, today); got != n-1 {
			t.Fatalf("iteration %d: expected %d, got %d", i, n-1, got)
		}
	}
}

func TestCompute_BreakingStatusStopsScan(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	today := day("2025-06-15")

	for i := 0; i < 500; i++ {
		n := 1 + r.Intn(20)
		history := make([]model.CheckIn, 0, n)
		for j := 0; j < n; j++ {
			history = append(history, model.CheckIn{
				Date:   today.AddDate(0, 0, -j),
				Status: allStatuses[r.Intn(len(allStatuses))],
			})
		}

		brk := -1
		for j, c := range history {
			if c.Status == model.CheckInStatusSkipped || c.Status == model.CheckInStatusMissed {
				brk = j
				break
			}
		}
		if brk < 0 {
			continue
		}

		got := Compute(history, today)
		want := 0
		if brk > 0 {
			want = Compute(history[:brk], today)
		}
		if got != want {
			t.Fatalf("iteration %d: entries past the break at %d changed the streak: got %d want %d", i, brk, got, want)
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	today := day("2025-06-15")
	history := randomHistory(r, today, 30)
	snapshot := append([]model.CheckIn(nil), history...)

	first := Compute(history, today)
	for i := 0; i < 10; i++ {
		if got := Compute(history, today); got != first {
			t.Fatalf("expected stable result %d, got %d", first, got)
		}
	}
	for i := range history {
		if history[i] != snapshot[i] {
			t.Fatalf("history mutated at index %d", i)
		}
	}
}
