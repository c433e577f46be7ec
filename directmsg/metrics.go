package directmsg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messageCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tweetor_direct_messages",
	Help: "Direct message submissions, by outcome",
}, []string{"outcome"})
