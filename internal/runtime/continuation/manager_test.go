// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package continuation

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pkgerrors "continuation-runtime/pkg/errors"
)

// stepsContinuable 测试用挂起计算：记录已执行步骤，支持克隆与快照
type stepsContinuable struct {
	mu    sync.Mutex
	steps []string
}

func newSteps(steps ...string) *stepsContinuable {
	return &stepsContinuable{steps: steps}
}

func (s *stepsContinuable) Append(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *stepsContinuable) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *stepsContinuable) Clone() (Continuable, error) {
	return newSteps(s.Steps()...), nil
}

func (s *stepsContinuable) MarshalState() ([]byte, error) {
	return json.Marshal(s.Steps())
}

// opaqueContinuable 不支持任何能力的挂起计算
type opaqueContinuable struct {
	value int
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// quietConfig 基本不触发清扫的长 TTL 配置
func quietConfig(clone bool) StaticConfig {
	return StaticConfig{
		Duration:  time.Hour,
		Frequency: 0,
		Scale:     1000000,
		Clone:     clone,
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"nil config", nil},
		{"zero scale", StaticConfig{Duration: time.Second, Scale: 0}},
		{"negative scale", StaticConfig{Duration: time.Second, Scale: -5}},
		{"frequency >= scale", StaticConfig{Duration: time.Second, Frequency: 10, Scale: 10}},
		{"negative frequency", StaticConfig{Duration: time.Second, Frequency: -1, Scale: 10}},
		{"negative duration", StaticConfig{Duration: -time.Second, Scale: 10}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg, nil); !errors.Is(err, pkgerrors.ErrInvalidArg) {
			t.Errorf("%s: expected ErrInvalidArg, got %v", tc.name, err)
		}
	}
}

func TestManager_AddContext_GetContext(t *testing.T) {
	m := newTestManager(t, quietConfig(false))
	c := NewContext(newSteps("a"), time.Now())
	m.AddContext(c)

	got := m.GetContext(c.ID())
	if got != c {
		t.Fatalf("GetContext should return the stored context, got %+v", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len: got %d", m.Len())
	}

	// nil 与空 id 均为 no-op
	m.AddContext(nil)
	m.RemoveContext("")
	if m.Len() != 1 {
		t.Errorf("no-op calls should not change registry, Len=%d", m.Len())
	}

	if m.GetContext("cont-unknown") != nil {
		t.Error("unknown id should return nil")
	}
}

func TestManager_RemoveContext(t *testing.T) {
	m := newTestManager(t, quietConfig(false))
	c := NewContext(newSteps(), time.Now())
	m.AddContext(c)
	m.RemoveContext(c.ID())
	if m.GetContext(c.ID()) != nil {
		t.Error("removed id should not resolve")
	}
	// 不存在的 id 删除为 no-op
	m.RemoveContext(c.ID())
	if m.Len() != 0 {
		t.Errorf("Len: got %d", m.Len())
	}
}

func TestManager_GetContext_LazyExpiration(t *testing.T) {
	m := newTestManager(t, StaticConfig{Duration: 100 * time.Millisecond, Scale: 1000000, Frequency: 0})
	c := NewContext(newSteps(), time.Now().Add(-200*time.Millisecond))
	m.AddContext(c)

	if m.GetContext(c.ID()) != nil {
		t.Error("expired context should not be returned")
	}
	// 惰性淘汰：查找即删除
	if m.Len() != 0 {
		t.Errorf("expired entry should be evicted on lookup, Len=%d", m.Len())
	}
}

// TTL=100ms：t=50ms 命中，t=150ms 过期
func TestManager_GetContext_TTLTimeline(t *testing.T) {
	m := newTestManager(t, StaticConfig{Duration: 100 * time.Millisecond, Scale: 1000000, Frequency: 0})
	c := NewContext(newSteps(), time.Now())
	m.AddContext(c)
	id := c.ID()

	time.Sleep(50 * time.Millisecond)
	if m.GetContext(id) == nil {
		t.Fatal("context should still be alive at t=50ms")
	}
	time.Sleep(100 * time.Millisecond)
	if m.GetContext(id) != nil {
		t.Error("context should be expired at t=150ms")
	}
}

func TestManager_IsExpired(t *testing.T) {
	m := newTestManager(t, StaticConfig{Duration: time.Minute, Scale: 1000000, Frequency: 0})
	if m.IsExpired(NewContext(newSteps(), time.Now())) {
		t.Error("fresh context should not be expired")
	}
	if !m.IsExpired(NewContext(newSteps(), time.Now().Add(-2*time.Minute))) {
		t.Error("old context should be expired")
	}
	if m.IsExpired(nil) {
		t.Error("nil context should not be expired")
	}
}

func TestManager_ResumeContext_Reuse(t *testing.T) {
	m := newTestManager(t, quietConfig(false))
	cont := newSteps("a")
	c := NewContext(cont, time.Now())
	m.AddContext(c)
	oldID := c.ID()

	resumed, err := m.ResumeContext(oldID)
	if err != nil {
		t.Fatalf("ResumeContext: %v", err)
	}
	if resumed != c {
		t.Error("reuse resume should return the same context instance")
	}
	if resumed.Continuable().(*stepsContinuable) != cont {
		t.Error("reuse resume should keep the continuable instance")
	}
	if resumed.ID() == oldID {
		t.Error("resume should assign a new id")
	}
	// 旧 id 永不重放
	if got, _ := m.ResumeContext(oldID); got != nil {
		t.Error("old id should not be resumable again")
	}
	if m.GetContext(resumed.ID()) != c {
		t.Error("context should be registered under the new id")
	}
	if m.Len() != 1 {
		t.Errorf("Len: got %d", m.Len())
	}
}

func TestManager_ResumeContext_Clone(t *testing.T) {
	m := newTestManager(t, quietConfig(true))
	cont := newSteps("a")
	c := NewContext(cont, time.Now())
	m.AddContext(c)
	oldID := c.ID()

	resumed, err := m.ResumeContext(oldID)
	if err != nil {
		t.Fatalf("ResumeContext: %v", err)
	}
	if resumed == nil || resumed == c {
		t.Fatalf("clone resume should return an independent copy, got %v", resumed)
	}
	if resumed.ID() == oldID {
		t.Error("clone should carry a new id")
	}
	// 原 Context 保留且仍可 resume
	if m.GetContext(oldID) != c {
		t.Error("original context should remain registered")
	}
	if again, err := m.ResumeContext(oldID); err != nil || again == nil {
		t.Errorf("original should still be resumable: %v %v", again, err)
	}
	// 副本与原件状态独立
	resumed.Continuable().(*stepsContinuable).Append("b")
	if len(cont.Steps()) != 1 {
		t.Errorf("clone mutation leaked into original: %v", cont.Steps())
	}
}

func TestManager_ResumeContext_CloneUnsupported(t *testing.T) {
	m := newTestManager(t, quietConfig(true))
	c := NewContext(&opaqueContinuable{value: 1}, time.Now())
	m.AddContext(c)
	id := c.ID()

	_, err := m.ResumeContext(id)
	if !errors.Is(err, ErrCloneUnsupported) {
		t.Fatalf("expected ErrCloneUnsupported, got %v", err)
	}
	// 失败不得改动注册表
	if m.GetContext(id) != c {
		t.Error("failed clone resume should leave the entry registered")
	}
	if m.Len() != 1 {
		t.Errorf("Len: got %d", m.Len())
	}
}

func TestManager_ResumeContext_Missing(t *testing.T) {
	m := newTestManager(t, quietConfig(false))
	resumed, err := m.ResumeContext("cont-unknown")
	if err != nil || resumed != nil {
		t.Errorf("missing id: got %v %v", resumed, err)
	}
}

func TestManager_ResumeContext_NotPaused(t *testing.T) {
	m := newTestManager(t, quietConfig(false))
	c := NewContext(newSteps(), time.Now())
	c.SetPaused(false)
	m.AddContext(c)

	resumed, err := m.ResumeContext(c.ID())
	if err != nil || resumed != nil {
		t.Errorf("non-paused context must not resume: got %v %v", resumed, err)
	}
	if m.Len() != 1 {
		t.Errorf("entry should remain registered, Len=%d", m.Len())
	}
}

func TestManager_ResumeContext_Expired(t *testing.T) {
	m := newTestManager(t, StaticConfig{Duration: 100 * time.Millisecond, Scale: 1000000, Frequency: 0})
	c := NewContext(newSteps(), time.Now().Add(-time.Second))
	m.AddContext(c)

	resumed, err := m.ResumeContext(c.ID())
	if err != nil || resumed != nil {
		t.Errorf("expired context must not resume: got %v %v", resumed, err)
	}
	if m.Len() != 0 {
		t.Errorf("expired entry should be evicted, Len=%d", m.Len())
	}
}

// 并发 resume 同一 id：至多一个成功
func TestManager_ResumeContext_ConcurrentAtMostOnce(t *testing.T) {
	m := newTestManager(t, quietConfig(false))
	c := NewContext(newSteps(), time.Now())
	m.AddContext(c)
	id := c.ID()

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan *Context, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resumed, err := m.ResumeContext(id)
			if err != nil {
				t.Errorf("ResumeContext: %v", err)
				return
			}
			results <- resumed
		}()
	}
	wg.Wait()
	close(results)

	var won int
	for r := range results {
		if r != nil {
			won++
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one successful resume, got %d", won)
	}
}
