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
	"fmt"
	"math/rand"

	"continuation-runtime/pkg/metrics"
)

// schedulePurge 每次 resume 以 (frequency+1)/scale 概率向清扫 worker 发信号。
// worker 只有一个，信号通道容量为 1：高频触发合并成一次清扫，不会堆积 goroutine。
func (m *Manager) schedulePurge() {
	if rand.Intn(m.config.PurgeScale()) <= m.config.PurgeFrequency() {
		select {
		case m.purgeCh <- struct{}{}:
		default:
			// 已有待执行的清扫，合并本次触发
		}
	}
}

func (m *Manager) purgeLoop() {
	for {
		select {
		case <-m.quit:
			return
		case <-m.purgeCh:
			m.purge()
		}
	}
}

// purge 清扫过期条目。先在读锁下收集过期 id（不阻塞其他读者），
// 再短暂持写锁删除；收集阶段出错则退回全程写锁的就地过滤。
// 清扫对任何调用方都不可见地失败：错过一轮没有关系，查找路径的
// 惰性淘汰兜底正确性。
func (m *Manager) purge() {
	stale, err := m.collectStale()
	if err != nil {
		m.logger.Warn("清扫收集阶段异常，退回写锁过滤", "error", err)
		m.purgeFallback()
		return
	}

	if len(stale) > 0 {
		m.mu.Lock()
		for _, id := range stale {
			// 收集后可能已被 resume 换 id 或显式删除，重检后再删
			if c, ok := m.contexts[id]; ok && m.IsExpired(c) {
				delete(m.contexts, id)
				metrics.ExpiredTotal.WithLabelValues("sweep").Inc()
			}
		}
		metrics.ContinuationsLive.Set(float64(len(m.contexts)))
		m.mu.Unlock()
	}
	metrics.SweepRunsTotal.WithLabelValues("snapshot").Inc()
}

// collectStale 读锁快照扫描；Config 是外部代码，panic 转为 error 交由调用方降级
func (m *Manager) collectStale() (stale []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stale = nil
			err = fmt.Errorf("scan: %v", r)
		}
	}()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, c := range m.contexts {
		if c != nil && m.IsExpired(c) {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// purgeFallback 全程持写锁就地过滤过期条目；期间不可能再有并发结构变更
func (m *Manager) purgeFallback() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("清扫降级路径异常，放弃本轮", "panic", r)
		}
	}()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.contexts {
		if c != nil && m.IsExpired(c) {
			delete(m.contexts, id)
			metrics.ExpiredTotal.WithLabelValues("sweep").Inc()
		}
	}
	metrics.ContinuationsLive.Set(float64(len(m.contexts)))
	metrics.SweepRunsTotal.WithLabelValues("fallback").Inc()
}
