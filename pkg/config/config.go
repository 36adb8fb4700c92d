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

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	pkgerrors "continuation-runtime/pkg/errors"
)

// Config 应用配置结构体
type Config struct {
	Continuation ContinuationConfig `mapstructure:"continuation"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// ContinuationConfig continuation 注册表策略配置
type ContinuationConfig struct {
	DurationMs     int  `mapstructure:"duration_ms"`     // 暂停 continuation 的存活时长（毫秒），>=0
	PurgeFrequency int  `mapstructure:"purge_frequency"` // 清扫触发分子，0 <= frequency < scale
	PurgeScale     int  `mapstructure:"purge_scale"`     // 清扫触发分母，> 0；触发概率为 (frequency+1)/scale
	Clone          bool `mapstructure:"clone"`           // resume 时克隆（true）还是复用（false）

	SnapshotStore SnapshotStoreConfig `mapstructure:"snapshot_store"`
}

// SnapshotStoreConfig 快照存储配置
type SnapshotStoreConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// DefaultContinuationConfig 默认 continuation 策略（与原始实现的缺省行为对齐）
func DefaultContinuationConfig() ContinuationConfig {
	return ContinuationConfig{
		DurationMs:     1200000, // 20 分钟
		PurgeFrequency: 9,
		PurgeScale:     1000,
		Clone:          true,
	}
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := config.Continuation.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadRuntimeConfig 加载运行时配置（configs/runtime.yaml）
func LoadRuntimeConfig() (*Config, error) {
	return LoadConfig("configs/runtime.yaml")
}

// Validate 校验 continuation 策略前置条件；违反时返回 ErrInvalidArg
func (c ContinuationConfig) Validate() error {
	if c.DurationMs < 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "continuation duration_ms=%d", c.DurationMs)
	}
	if c.PurgeScale <= 0 {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "continuation purge_scale=%d", c.PurgeScale)
	}
	if c.PurgeFrequency < 0 || c.PurgeFrequency >= c.PurgeScale {
		return pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "continuation purge_frequency=%d purge_scale=%d", c.PurgeFrequency, c.PurgeScale)
	}
	return nil
}
