package handler

import (
	"net/http"

	"github.com/templui/fintrack/internal/ctxkeys"
	"github.com/templui/fintrack/internal/service"
)

type DashboardHandler struct {
	recordServices []*service.RecordService
}

func NewDashboardHandler(recordServices ...*service.RecordService) *DashboardHandler {
	return &DashboardHandler{
		recordServices: recordServices,
	}
}

// DashboardPage returns the most recent record of every kind, keyed by kind
func (h *DashboardHandler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())

	latest := make(map[string]any, len(h.recordServices))
	for _, s := range h.recordServices {
		record, err := s.Latest(user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		latest[string(s.Kind())] = record
	}

	writeJSON(w, http.StatusOK, latest)
}
