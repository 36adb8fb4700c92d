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

import "errors"

// Continuable 挂起计算的不透明载体；由外部代码变换协作方生成，本子系统只持有与传递
type Continuable any

// CloneableContinuable 克隆能力：深拷贝挂起计算，副本与原件不共享可变状态。
// 能力检测在调用点做类型断言，不支持克隆的 Continuable 不实现本接口即可。
type CloneableContinuable interface {
	Clone() (Continuable, error)
}

// Snapshotter 快照能力：将挂起计算序列化为字节，供 SnapshotStore 持久化
type Snapshotter interface {
	MarshalState() ([]byte, error)
}

var (
	// ErrCloneUnsupported resume 要求克隆但 Continuable 不支持
	ErrCloneUnsupported = errors.New("continuable does not support cloning")
	// ErrSnapshotUnsupported 快照要求序列化但 Continuable 不支持
	ErrSnapshotUnsupported = errors.New("continuable does not support snapshots")
)
