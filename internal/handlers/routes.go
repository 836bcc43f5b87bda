package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/radtrack/internal/models"
)

// Routes registers every server-of-record endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(route string, fn http.HandlerFunc) {
		mux.HandleFunc(route, h.metrics.Instrument(route, fn))
	}
	handle(models.RouteProgressSummary, h.HandleProgressSummary)
	handle(models.RouteReportSummary, h.HandleReportSummary)
	handle(models.RouteSnapshot, h.HandleSnapshot(KindSnapshot))
	handle(models.RouteHeartbeat, h.HandleSnapshot(KindHeartbeat))
	handle(models.RouteCompleteCase, h.HandleCompleteCase)
	handle(models.RouteCheckpoint, h.HandleCheckpoint)
	handle(models.RouteReportSubmit, h.HandleReportSubmit)
	handle(models.RouteCaseLogs, h.HandleCaseLogs)
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}
