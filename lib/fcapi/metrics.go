package fcapi

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metrics instruments for control API calls.
type Metrics struct {
	APIDuration    metric.Float64Histogram
	APIErrorsTotal metric.Int64Counter
}

// APIMetrics is the global metrics instance for the fcapi package.
// Set this via SetMetrics() during application initialization.
var APIMetrics *Metrics

// SetMetrics sets the global metrics instance.
func SetMetrics(m *Metrics) {
	APIMetrics = m
}

// NewMetrics creates control API metrics instruments.
// If meter is nil, returns nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, nil
	}

	apiDuration, err := meter.Float64Histogram(
		"firekit_api_duration_seconds",
		metric.WithDescription("Firecracker control API call duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	apiErrorsTotal, err := meter.Int64Counter(
		"firekit_api_errors_total",
		metric.WithDescription("Total number of Firecracker control API errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		APIDuration:    apiDuration,
		APIErrorsTotal: apiErrorsTotal,
	}, nil
}

// metricsRoundTripper wraps an http.RoundTripper to record metrics.
type metricsRoundTripper struct {
	base http.RoundTripper
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := m.base.RoundTrip(req)

	if APIMetrics != nil {
		operation := req.Method + " " + req.URL.Path
		status := "success"
		if err != nil || (resp != nil && resp.StatusCode >= 400) {
			status = "error"
			APIMetrics.APIErrorsTotal.Add(req.Context(), 1,
				metric.WithAttributes(attribute.String("operation", operation)))
		}
		APIMetrics.APIDuration.Record(req.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("status", status),
			))
	}

	return resp, err
}
