package cachestore

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tweetor_cache_lookups",
	Help: "Cache lookups, by backend and whether they hit",
}, []string{"backend", "hit"})

func countLookup(backend string, hit bool) {
	lookupCount.WithLabelValues(backend, strconv.FormatBool(hit)).Inc()
}
