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

	"github.com/google/uuid"
)

// Context 挂起执行的注册单元：{id, 起始时间, Continuable, 暂停态}。
// id 在每次重新进入注册表（reuse/clone）时重置，旧 id 永不复活。
type Context struct {
	mu sync.RWMutex

	id          string
	start       time.Time
	continuable Continuable
	paused      bool
}

// NewContext 创建新 Context，分配全新 id，paused=true；start 为零值时取当前时间
func NewContext(continuable Continuable, start time.Time) *Context {
	if start.IsZero() {
		start = time.Now()
	}
	return &Context{
		id:          newContextID(),
		start:       start,
		continuable: continuable,
		paused:      true,
	}
}

func newContextID() string {
	return "cont-" + uuid.New().String()
}

// ID 返回当前唯一标识
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Start 返回创建时间；只用于过期判定，创建后不再变化
func (c *Context) Start() time.Time {
	return c.start
}

// Continuable 返回挂起计算载体
func (c *Context) Continuable() Continuable {
	return c.continuable
}

// IsPaused 是否仍在等待 resume
func (c *Context) IsPaused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// SetPaused 由宿主执行引擎标记消费状态；paused=false 的 Context 不会再被 resume
func (c *Context) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// resetID 分配新 id；仅 Manager 在 resume 重新入表时调用
func (c *Context) resetID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = newContextID()
}

// clone 深拷贝：Continuable 必须支持克隆能力，否则 ErrCloneUnsupported。
// 副本沿用原 id，由 Manager 在入表前 resetID。
func (c *Context) clone() (*Context, error) {
	cloneable, ok := c.continuable.(CloneableContinuable)
	if !ok {
		return nil, ErrCloneUnsupported
	}
	cloned, err := cloneable.Clone()
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Context{
		id:          c.id,
		start:       c.start,
		continuable: cloned,
		paused:      c.paused,
	}, nil
}
