package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var submissionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tweetor_feed_submissions",
	Help: "Post submissions, by kind and outcome",
}, []string{"kind", "outcome"})
