package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photo-indexer/internal/metrics"
)

// MetricsHandler serves the default registry, in OpenMetrics format when the
// scraper asks for it. Scrapes count toward the in-flight request gauge.
func (h *Handlers) MetricsHandler() http.Handler {
	handler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
	return promhttp.InstrumentHandlerInFlight(metrics.HTTPRequestsInFlight, handler)
}
