package optimistic

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultApplied   = "applied"
	resultConfirmed = "confirmed"
	resultReverted  = "reverted"
	resultDenied    = "denied"
)

// Metrics 乐观更新指标
type Metrics struct {
	Mutations      *prometheus.CounterVec
	PersistLatency prometheus.Histogram
}

// NewMetrics 创建并注册指标；reg 为 nil 时使用默认 Registerer
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_optimistic_mutations_total",
			Help: "Optimistic mutations by outcome",
		}, []string{"result"}),
		PersistLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "board_optimistic_persist_seconds",
			Help:    "Latency of remote persist calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	// 重复注册时复用已有的 collector（同一进程里多个 Session）
	if err := reg.Register(m.Mutations); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.Mutations = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.PersistLatency); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.PersistLatency = are.ExistingCollector.(prometheus.Histogram)
	}
	return m, nil
}

func (m *Metrics) observe(result string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(result).Inc()
}

func (m *Metrics) observeLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PersistLatency.Observe(d.Seconds())
}
