package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var submitRateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tweetor_submissions_rate_limited",
	Help: "Number of post or message submissions refused by the rate limiter",
})

var signups = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tweetor_signups",
	Help: "Number of accounts created",
})
