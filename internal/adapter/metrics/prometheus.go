package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exports install pipeline metrics.
type Recorder struct {
	stageDuration   *prometheus.HistogramVec
	stageOutcomes   *prometheus.CounterVec
	downloadedBytes prometheus.Counter
}

// NewRecorder creates a Recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharpinstall_stage_seconds",
				Help:    "Duration of each install stage, in seconds.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"},
		),
		stageOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharpinstall_stage_total",
				Help: "Install stages completed, by stage and tagged outcome.",
			},
			[]string{"stage", "outcome"},
		),
		downloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharpinstall_downloaded_bytes_total",
				Help: "Bytes of prebuilt archives downloaded.",
			},
		),
	}
	reg.MustRegister(r.stageDuration, r.stageOutcomes, r.downloadedBytes)
	return r
}

// ObserveStage records one stage transition.
func (r *Recorder) ObserveStage(stage, outcome string, elapsed time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	r.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// AddDownloadedBytes adds n to the downloaded bytes counter.
func (r *Recorder) AddDownloadedBytes(n int64) {
	r.downloadedBytes.Add(float64(n))
}

// Nop discards all observations.
type Nop struct{}

func (Nop) ObserveStage(string, string, time.Duration) {}
func (Nop) AddDownloadedBytes(int64)                   {}
