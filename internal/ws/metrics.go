package ws

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	roomsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "board_ws_rooms",
		Help: "Number of board rooms held in memory.",
	})
	clientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "board_ws_clients",
		Help: "Number of connected websocket clients.",
	})
	flushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "board_ws_flush_total",
		Help: "Room flushes to the database by result.",
	}, []string{"result"})
)

// RegisterMetrics 注册房间相关指标，重复注册视为成功
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{roomsGauge, clientsGauge, flushTotal} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
