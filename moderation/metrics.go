package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tweetor_moderation_verdicts",
	Help: "Number of moderation verdicts, by decision and whether the classifier failed",
}, []string{"decision", "degraded"})

var classifierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "tweetor_moderation_classifier_duration_sec",
	Help: "Duration of individual classifier attempts",
})

var classifierFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tweetor_moderation_classifier_failures",
	Help: "Number of failed classifier attempts",
}, []string{"permanent"})

var verdictCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tweetor_moderation_cache_hits",
	Help: "Number of verdicts served from cache",
})
