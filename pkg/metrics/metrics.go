package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 runtimed/宿主进程注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ContinuationsLive, ResumeTotal,
		ExpiredTotal, SweepRunsTotal,
		SnapshotOpsTotal,
	)
}

// ContinuationsLive 当前注册表中存活的 continuation 数
var ContinuationsLive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "contrt_continuations_live",
		Help: "当前注册表中存活的 continuation 数",
	},
)

// ResumeTotal resume 总数（按模式）
var ResumeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contrt_resume_total",
		Help: "resume 总数（按模式）",
	},
	[]string{"mode"}, // clone | reuse | miss
)

// ExpiredTotal 过期淘汰总数（按路径）
var ExpiredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contrt_expired_total",
		Help: "过期淘汰总数（按路径）",
	},
	[]string{"path"}, // lookup | sweep
)

// SweepRunsTotal 清扫执行总数（按路径）
var SweepRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contrt_sweep_runs_total",
		Help: "清扫执行总数（按路径）",
	},
	[]string{"path"}, // snapshot | fallback
)

// SnapshotOpsTotal 快照存储操作总数（按操作）
var SnapshotOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contrt_snapshot_ops_total",
		Help: "快照存储操作总数（按操作）",
	},
	[]string{"op"}, // save | load | delete
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供任意 HTTP 宿主复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
