package stateroot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolBusyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stateroot_pool_busy",
		Help: "Transaction handles currently loaned out",
	})
	poolFreeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stateroot_pool_free",
		Help: "Transaction handles currently available",
	})
	queueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stateroot_queue_depth",
		Help: "Jobs of the in-flight batch not yet dispatched",
	})
	jobWaitHist = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stateroot_job_wait_seconds",
		Help:    "Time a job waited for a free transaction handle",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)
