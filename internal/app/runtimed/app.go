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

package runtimed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"continuation-runtime/internal/runtime/continuation"
	"continuation-runtime/pkg/config"
	"continuation-runtime/pkg/log"
	"continuation-runtime/pkg/metrics"
)

// App continuation 运行时宿主：注册表 + 快照存储 + 监控端点
type App struct {
	cfg    *config.Config
	logger *log.Logger

	manager       *continuation.Manager
	snapshotStore continuation.SnapshotStore
	pgStore       *continuation.SnapshotStorePg

	metricsServer *http.Server
}

// NewApp 按配置装配应用
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	cc := cfg.Continuation
	manager, err := continuation.NewManager(continuation.StaticConfig{
		Duration:  time.Duration(cc.DurationMs) * time.Millisecond,
		Frequency: cc.PurgeFrequency,
		Scale:     cc.PurgeScale,
		Clone:     cc.Clone,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, manager: manager}

	// 快照存储：缺省 memory，postgres 时多进程共享
	switch cc.SnapshotStore.Type {
	case "", "memory":
		a.snapshotStore = continuation.NewSnapshotStoreMem()
	case "postgres":
		pg, err := continuation.NewSnapshotStorePgFromDSN(context.Background(), cc.SnapshotStore.DSN)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("初始化快照存储失败: %w", err)
		}
		a.snapshotStore = pg
		a.pgStore = pg
	default:
		manager.Close()
		return nil, fmt.Errorf("未知快照存储类型: %q", cc.SnapshotStore.Type)
	}

	return a, nil
}

// Manager 返回 continuation 注册表
func (a *App) Manager() *continuation.Manager {
	return a.manager
}

// SnapshotStore 返回快照存储
func (a *App) SnapshotStore() continuation.SnapshotStore {
	return a.snapshotStore
}

// Start 启动应用；按配置暴露 Prometheus 端点
func (a *App) Start() error {
	a.logger.Info("启动 continuation 运行时",
		"duration_ms", a.cfg.Continuation.DurationMs,
		"purge_frequency", a.cfg.Continuation.PurgeFrequency,
		"purge_scale", a.cfg.Continuation.PurgeScale,
		"clone", a.cfg.Continuation.Clone,
	)

	if a.cfg.Monitoring.Prometheus.Enable {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			if err := metrics.WritePrometheus(w); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		addr := fmt.Sprintf(":%d", a.cfg.Monitoring.Prometheus.Port)
		a.metricsServer = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("Prometheus 端点退出", "error", err)
			}
		}()
		a.logger.Info("Prometheus 端点已启动", "addr", addr)
	}
	return nil
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 continuation 运行时")
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("关闭 Prometheus 端点失败", "error", err)
		}
	}
	a.manager.Close()
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	return nil
}
