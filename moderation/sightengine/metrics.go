package sightengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "tweetor_sightengine_api_duration_sec",
	Help: "Duration of Sightengine text check API calls",
})

var apiCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tweetor_sightengine_api_count",
	Help: "Number of Sightengine text check API calls, by HTTP status code",
}, []string{"status"})
