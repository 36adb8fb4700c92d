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
	"sync"
	"time"

	"continuation-runtime/pkg/log"
	"continuation-runtime/pkg/metrics"
)

// Manager continuation 注册表：持有全部暂停 Context，负责过期淘汰与 resume 编排。
// 注册表是唯一共享可变资源，由单个读写锁端到端保护；Context 交给调用方后，
// Manager 只通过 resume 协议（删除+重插 / 克隆+插入）和 resetID 再触碰它。
type Manager struct {
	mu       sync.RWMutex
	contexts map[string]*Context

	config Config
	logger *log.Logger

	purgeCh   chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

// NewManager 创建 Manager 并启动清扫 worker；cfg 违反前置条件时返回错误。
// logger 可为 nil，此时丢弃日志输出。
func NewManager(cfg Config, logger *log.Logger) (*Manager, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	m := &Manager{
		contexts: make(map[string]*Context),
		config:   cfg,
		logger:   logger,
		purgeCh:  make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	go m.purgeLoop()
	return m, nil
}

// Close 停止清扫 worker；幂等
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
	})
}

// IsExpired 判定 Context 是否过期：now - start >= duration。
// 查找路径与清扫路径共用同一判定。
func (m *Manager) IsExpired(c *Context) bool {
	if c == nil {
		return false
	}
	return time.Since(c.Start()) >= m.config.ContinuationDuration()
}

// AddContext 注册 Context；nil 为 no-op。id 构造期唯一，若仍冲突则后写覆盖。
func (m *Manager) AddContext(c *Context) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[c.ID()] = c
	metrics.ContinuationsLive.Set(float64(len(m.contexts)))
}

// RemoveContext 删除 Context；id 为空或不存在时 no-op
func (m *Manager) RemoveContext(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, id)
	metrics.ContinuationsLive.Set(float64(len(m.contexts)))
}

// GetContext 按 id 查找；未注册返回 nil。命中但已过期时就地淘汰并返回 nil，
// 该惰性检查独立于后台清扫，在每次查找上生效。
func (m *Manager) GetContext(id string) *Context {
	m.mu.RLock()
	c, ok := m.contexts[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if m.IsExpired(c) {
		m.evictExpired(id)
		return nil
	}
	return c
}

// evictExpired 升级到写锁删除过期条目；重检在场与过期，避免与并发 resume 互踩
func (m *Manager) evictExpired(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.contexts[id]
	if !ok || !m.IsExpired(cur) {
		return
	}
	delete(m.contexts, id)
	metrics.ContinuationsLive.Set(float64(len(m.contexts)))
	metrics.ExpiredTotal.WithLabelValues("lookup").Inc()
	m.logger.Debug("过期 continuation 已淘汰", "id", id, "path", "lookup")
}

// ResumeContext 恢复 id 对应的 Context：
// 先概率性触发清扫（不阻塞本调用），随后在单个写锁临界区内完成
// 查找、克隆/复用决策与结构变更，保证同一 id 的并发 resume 至多一个成功。
// 返回 (nil, nil) 表示目标不存在、已过期或未处于暂停态。
func (m *Manager) ResumeContext(id string) (*Context, error) {
	m.schedulePurge()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[id]
	if ok && m.IsExpired(c) {
		delete(m.contexts, id)
		metrics.ContinuationsLive.Set(float64(len(m.contexts)))
		metrics.ExpiredTotal.WithLabelValues("lookup").Inc()
		ok = false
	}
	if !ok || !c.IsPaused() {
		metrics.ResumeTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}

	if m.config.ShouldClone(c.Continuable()) {
		// 克隆路径：原 Context 保留在表中，仍可被 resume；失败时注册表不变
		cloned, err := c.clone()
		if err != nil {
			return nil, err
		}
		cloned.resetID()
		m.contexts[cloned.ID()] = cloned
		metrics.ContinuationsLive.Set(float64(len(m.contexts)))
		metrics.ResumeTotal.WithLabelValues("clone").Inc()
		return cloned, nil
	}

	// 复用路径：同一实例换新 id 重新入表，旧 id 从此不可重放
	delete(m.contexts, c.ID())
	c.resetID()
	m.contexts[c.ID()] = c
	metrics.ResumeTotal.WithLabelValues("reuse").Inc()
	return c, nil
}

// Len 返回当前注册条目数（检视/测试用）
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}
