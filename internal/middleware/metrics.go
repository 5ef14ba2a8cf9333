package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accessDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_denials_total",
		Help: "Requests rejected by the authorization guards.",
	}, []string{"reason"})

	rateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_rejections_total",
		Help: "Requests rejected by the per-principal rate limiter.",
	})
)
