package continuation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"continuation-runtime/pkg/metrics"
)

// Snapshot 持久化的 continuation 执行快照。注册表只存轻量 Context，
// 重量级执行状态经 Snapshotter 序列化后放入 SnapshotStore，
// 外部持有方与注册表各自独立引用，互不牵制回收。
type Snapshot struct {
	ID string

	OwnerID   string // 宿主归属（站点/引擎实例等）
	ContextID string // 捕获时的 Context id，仅溯源用，不保证仍然有效

	State []byte // Snapshotter.MarshalState 的产物

	StartedAt time.Time // 原 Context 的创建时间
	CreatedAt time.Time
}

// SnapshotStore 快照存储接口
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) (id string, err error)
	Load(ctx context.Context, id string) (*Snapshot, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// snapshotStoreMem 内存实现的 SnapshotStore
type snapshotStoreMem struct {
	mu   sync.RWMutex
	byID map[string]*Snapshot
}

// NewSnapshotStoreMem 创建内存版 SnapshotStore
func NewSnapshotStoreMem() SnapshotStore {
	return &snapshotStoreMem{byID: make(map[string]*Snapshot)}
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	if snap == nil {
		return nil
	}
	out := *snap
	if len(snap.State) > 0 {
		out.State = make([]byte, len(snap.State))
		copy(out.State, snap.State)
	}
	return &out
}

func (s *snapshotStoreMem) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	id := snap.ID
	if id == "" {
		id = "snap-" + uuid.New().String()
		snap.ID = id
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = cloneSnapshot(snap)
	return id, nil
}

func (s *snapshotStoreMem) Load(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	// 返回副本，避免外部修改
	return cloneSnapshot(snap), nil
}

func (s *snapshotStoreMem) ListByOwner(ctx context.Context, ownerID string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []*Snapshot
	for _, snap := range s.byID {
		if snap.OwnerID == ownerID {
			list = append(list, cloneSnapshot(snap))
		}
	}
	return list, nil
}

func (s *snapshotStoreMem) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

// SnapshotContext 将 id 对应的暂停 Context 序列化存入 store，返回快照 id。
// 目标不存在或已过期返回空 id；Continuable 不支持快照时返回 ErrSnapshotUnsupported。
func (m *Manager) SnapshotContext(ctx context.Context, id string, ownerID string, store SnapshotStore) (string, error) {
	c := m.GetContext(id)
	if c == nil {
		return "", nil
	}
	snapshotter, ok := c.Continuable().(Snapshotter)
	if !ok {
		return "", ErrSnapshotUnsupported
	}
	state, err := snapshotter.MarshalState()
	if err != nil {
		return "", err
	}
	snap := &Snapshot{
		OwnerID:   ownerID,
		ContextID: c.ID(),
		State:     state,
		StartedAt: c.Start(),
	}
	snapID, err := store.Save(ctx, snap)
	if err != nil {
		return "", err
	}
	metrics.SnapshotOpsTotal.WithLabelValues("save").Inc()
	return snapID, nil
}

// RestoreContext 从 store 取回快照，经 rehydrate 重建 Continuable 并注册为
// 全新的暂停 Context（新 id，新 TTL 窗口）。快照不存在返回 (nil, nil)。
func (m *Manager) RestoreContext(ctx context.Context, store SnapshotStore, snapshotID string, rehydrate func(state []byte) (Continuable, error)) (*Context, error) {
	snap, err := store.Load(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	metrics.SnapshotOpsTotal.WithLabelValues("load").Inc()
	continuable, err := rehydrate(snap.State)
	if err != nil {
		return nil, err
	}
	c := NewContext(continuable, time.Now())
	m.AddContext(c)
	return c, nil
}
