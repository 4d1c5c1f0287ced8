package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMiddleware counts requests and observes their latency by
// method, route and status.
func PrometheusMiddleware(reg prometheus.Registerer) fiber.Handler {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lessonsync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lessonsync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)
	reg.MustRegister(total, duration)

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start).Seconds()

		status := c.Response().StatusCode()
		if err != nil {
			var e *fiber.Error
			if errors.As(err, &e) {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		// Route patterns keep item keys out of the label set. The method
		// string points into fasthttp's request buffer, so it is copied
		// before it outlives the request.
		path := c.Route().Path
		labels := []string{utils.CopyString(c.Method()), path, strconv.Itoa(status)}
		total.WithLabelValues(labels...).Inc()
		duration.WithLabelValues(labels...).Observe(elapsed)
		return err
	}
}
