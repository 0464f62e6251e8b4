// Package metrics 生产订单服务的 Prometheus 指标
//
// 指标分类:
//
//  1. 计数器 (Counter):
//     - mes_order_transitions_total{action,to}: MO状态变更次数
//     - mes_batch_completions_total{process}: 批次工序完成次数
//     - mes_process_auto_completions_total: 工序按阈值自动完成次数
//     - mes_order_stops_total: 停产次数
//     - mes_ledger_releases_total{kind}: 资源台账释放条数
//     - mes_operation_errors_total{operation,kind}: 业务操作失败次数
//
//  2. 直方图 (Histogram):
//     - mes_lock_wait_seconds: 获取MO锁的等待时间
//
//  3. 状态指标 (Gauge):
//     - mes_realtime_clients: 当前实时推送连接数
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus 指标收集器
type Collector struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	batchCompleted  *prometheus.CounterVec
	autoCompletions prometheus.Counter
	stops           prometheus.Counter
	releases        *prometheus.CounterVec
	errors          *prometheus.CounterVec

	lockWait        prometheus.Histogram
	realtimeClients prometheus.Gauge
}

// NewCollector 创建指标收集器，指标注册在独立的 Registry 上
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_order_transitions_total",
			Help: "Manufacturing order status transitions",
		}, []string{"action", "to"}),
		batchCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_batch_completions_total",
			Help: "Batch process completions by process name",
		}, []string{"process"}),
		autoCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mes_process_auto_completions_total",
			Help: "Process executions completed by the batch threshold",
		}),
		stops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mes_order_stops_total",
			Help: "Manufacturing orders stopped",
		}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_ledger_releases_total",
			Help: "Resource ledger entries released by kind",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mes_operation_errors_total",
			Help: "Failed business operations by error kind",
		}, []string{"operation", "kind"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mes_lock_wait_seconds",
			Help:    "Time spent waiting for the per-order lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mes_realtime_clients",
			Help: "Connected realtime subscribers",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.transitions,
		c.batchCompleted,
		c.autoCompletions,
		c.stops,
		c.releases,
		c.errors,
		c.lockWait,
		c.realtimeClients,
	)
	return c
}

// Registry 返回底层 Registry，测试中用于读取指标
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler /metrics 端点
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordTransition 记录MO状态变更
func (c *Collector) RecordTransition(action, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(action, to).Inc()
}

// RecordBatchCompleted 记录批次工序完成
func (c *Collector) RecordBatchCompleted(process string, autoCompleted bool) {
	if c == nil {
		return
	}
	c.batchCompleted.WithLabelValues(process).Inc()
	if autoCompleted {
		c.autoCompletions.Inc()
	}
}

// RecordStop 记录停产
func (c *Collector) RecordStop() {
	if c == nil {
		return
	}
	c.stops.Inc()
}

// RecordRelease 记录台账释放
func (c *Collector) RecordRelease(kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.releases.WithLabelValues(kind).Add(float64(n))
}

// RecordError 记录业务失败
func (c *Collector) RecordError(operation, kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(operation, kind).Inc()
}

// ObserveLockWait 记录锁等待
func (c *Collector) ObserveLockWait(seconds float64) {
	if c == nil {
		return
	}
	c.lockWait.Observe(seconds)
}

// SetRealtimeClients 设置实时连接数
func (c *Collector) SetRealtimeClients(n int) {
	if c == nil {
		return
	}
	c.realtimeClients.Set(float64(n))
}
