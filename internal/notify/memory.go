package notify

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"GoalEngine/internal/model"
)

// ErrRefused 模拟系统拒绝注册
var ErrRefused = errors.New("notification registration refused")

// Memory 进程内注册表，开发模式与测试使用
type Memory struct {
	mu      sync.Mutex
	regs    map[string]model.Registration
	now     func() time.Time
	cancels int
	refuse  bool

	// Shown 记录 CreateOrReplace 的次数
	Shown int
}

func NewMemory() *Memory {
	return &Memory{regs: make(map[string]model.Registration), now: time.Now}
}

// WithClock 替换时钟
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Refuse 之后的注册全部失败
func (m *Memory) Refuse(refuse bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refuse = refuse
}

func (m *Memory) RegisterDaily(_ context.Context, key string, at model.TimeOfDay, loc *time.Location, content model.NotificationContent) error {
	reg := newRegistration(key, model.RegistrationKindDaily, content)
	reg.TimeOfDay = at.String()
	reg.Timezone = loc.String()
	reg.NextFireAt = at.Next(m.now(), loc)
	return m.put(reg)
}

func (m *Memory) RegisterOneShot(_ context.Context, key string, delay time.Duration, content model.NotificationContent) error {
	reg := newRegistration(key, model.RegistrationKindOneShot, content)
	reg.NextFireAt = m.now().Add(delay)
	return m.put(reg)
}

func (m *Memory) CreateOrReplace(_ context.Context, key string, content model.NotificationContent) error {
	reg := newRegistration(key, model.RegistrationKindOngoing, content)
	reg.NextFireAt = m.now()
	if err := m.put(reg); err != nil {
		return err
	}
	m.mu.Lock()
	m.Shown++
	m.mu.Unlock()
	return nil
}

func (m *Memory) put(reg model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return ErrRefused
	}
	if old, ok := m.regs[reg.Key]; ok {
		reg.ID = old.ID
		reg.CreatedAt = old.CreatedAt
	} else {
		reg.ID = int64(len(m.regs) + 1)
		reg.CreatedAt = m.now()
	}
	reg.UpdatedAt = m.now()
	m.regs[reg.Key] = reg
	return nil
}

func (m *Memory) Cancel(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[key]; ok {
		delete(m.regs, key)
		m.cancels++
	}
	return nil
}

func (m *Memory) CancelUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, r := range m.regs {
		if r.UserID == userID {
			delete(m.regs, k)
			n++
		}
	}
	m.cancels += n
	return n, nil
}

func (m *Memory) CancelGoal(_ context.Context, userID, goalID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, r := range m.regs {
		if r.UserID == userID && r.GoalID == goalID {
			delete(m.regs, k)
			n++
		}
	}
	m.cancels += n
	return n, nil
}

func (m *Memory) Due(_ context.Context, now time.Time, limit int) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []model.Registration
	for _, r := range m.regs {
		if r.Kind == model.RegistrationKindOngoing || r.NextFireAt.After(now) {
			continue
		}
		due = append(due, r)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextFireAt.Before(due[j].NextFireAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) MarkFired(_ context.Context, reg model.Registration, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.regs[reg.Key]
	if !ok {
		return nil
	}
	if cur.Kind != model.RegistrationKindDaily {
		delete(m.regs, reg.Key)
		return nil
	}
	next, err := NextFire(cur, now)
	if err != nil {
		return err
	}
	cur.NextFireAt = next
	m.regs[reg.Key] = cur
	return nil
}

// Get 按 key 查询
func (m *Memory) Get(key string) (model.Registration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[key]
	return r, ok
}

// Live 当前全部有效注册，按 key 排序
func (m *Memory) Live() []model.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Registration, 0, len(m.regs))
	for _, r := range m.regs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count 某个目标某个类别的有效注册数，goalID 为空时统计全部目标
func (m *Memory) Count(goalID string, category model.NotificationCategory) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.regs {
		if r.Category == category && (goalID == "" || r.GoalID == goalID) {
			n++
		}
	}
	return n
}

// KeysWithPrefix 以 prefix 开头的 key
func (m *Memory) KeysWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.regs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Cancels 实际删除过的注册数
func (m *Memory) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}
