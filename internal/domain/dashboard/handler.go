package dashboard

import (
	"net/http"
	"time"

	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/response"
)

const defaultPeriod = 30 * 24 * time.Hour

// Handler handles dashboard HTTP requests
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler creates new dashboard handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// GetStats handles GET /admin/dashboard?from=&to= (dates or RFC3339; default last 30 days)
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	to := h.now()
	from := to.Add(-defaultPeriod)

	q := r.URL.Query()
	errs := map[string]string{}
	if v := q.Get("from"); v != "" {
		t, ok := parseDate(v)
		if !ok {
			errs["from"] = "Use YYYY-MM-DD or RFC3339"
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, ok := parseDate(v)
		if !ok {
			errs["to"] = "Use YYYY-MM-DD or RFC3339"
		}
		to = t
	}
	if len(errs) == 0 && !from.Before(to) {
		errs["from"] = "Must be before to"
	}
	if len(errs) > 0 {
		response.ValidationError(w, errs)
		return
	}

	stats, err := h.service.GetStats(r.Context(), from, to)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to load dashboard")
		return
	}
	response.OK(w, stats)
}

func parseDate(v string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
