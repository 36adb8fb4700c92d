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
	"time"

	pkgerrors "continuation-runtime/pkg/errors"
)

// Config 运行时策略（注入协作方）：TTL、清扫概率与克隆判定
type Config interface {
	// ContinuationDuration 暂停 Context 的存活时长；超过即过期
	ContinuationDuration() time.Duration
	// PurgeFrequency 清扫触发分子，0 <= frequency < scale
	PurgeFrequency() int
	// PurgeScale 清扫触发分母，> 0；每次 resume 以 (frequency+1)/scale 概率触发清扫
	PurgeScale() int
	// ShouldClone 按 Continuable 决定 resume 走克隆还是复用
	ShouldClone(continuable Continuable) bool
}

// StaticConfig 固定取值的 Config 实现，便于从 pkg/config 桥接或在测试中直接构造
type StaticConfig struct {
	Duration  time.Duration
	Frequency int
	Scale     int
	Clone     bool
}

func (c StaticConfig) ContinuationDuration() time.Duration { return c.Duration }
func (c StaticConfig) PurgeFrequency() int                 { return c.Frequency }
func (c StaticConfig) PurgeScale() int                     { return c.Scale }
func (c StaticConfig) ShouldClone(Continuable) bool        { return c.Clone }

// validateConfig 构造期前置校验；违反约定返回 ErrInvalidArg
func validateConfig(cfg Config) error {
	if cfg == nil {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "nil config")
	}
	if cfg.ContinuationDuration() < 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "continuation duration %s", cfg.ContinuationDuration())
	}
	scale := cfg.PurgeScale()
	if scale <= 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "purge scale %d", scale)
	}
	if freq := cfg.PurgeFrequency(); freq < 0 || freq >= scale {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "purge frequency %d with scale %d", freq, scale)
	}
	return nil
}
