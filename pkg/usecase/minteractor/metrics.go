// 指示: miu200521358
package minteractor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// poseSyncMetrics はパイプラインの計測値を保持する。
type poseSyncMetrics struct {
	frames       prometheus.Counter
	bonesApplied prometheus.Counter
	failures     *prometheus.CounterVec
	ikSolves     *prometheus.CounterVec
}

// newPoseSyncMetrics は計測値を登録する。reg が nil なら専用レジストリへ登録する。
func newPoseSyncMetrics(reg prometheus.Registerer) *poseSyncMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &poseSyncMetrics{
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "pose_sync_frames_total",
			Help: "Total frames that started pose synchronization",
		}),
		bonesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "pose_sync_bones_applied_total",
			Help: "Total bones whose pose stack was replayed",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pose_sync_failures_total",
			Help: "Total swallowed failures by frame stage",
		}, []string{"stage"}),
		ikSolves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pose_sync_ik_solves_total",
			Help: "Total IK solver invocations by solver",
		}, []string{"solver"}),
	}
}

func (m *poseSyncMetrics) failure(stage string) {
	m.failures.WithLabelValues(stage).Inc()
}
