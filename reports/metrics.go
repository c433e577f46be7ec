package reports

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tweetor_reports_filed",
	Help: "Number of post reports filed",
})
