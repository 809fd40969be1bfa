package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"salonfront/internal/catalog"
	"salonfront/pkg/domain"
)

// handleCatalog returns the bookable services and combos. An optional
// gender filter narrows both collections; unisex items always match.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	services, combos, err := s.salon.Catalog(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if gender := domain.Gender(strings.TrimSpace(r.URL.Query().Get("gender"))); gender != "" {
		services = filterServices(services, gender)
		combos = filterCombos(combos, gender)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services": services,
		"combos":   combos,
	})
}

// handleSlots exposes the slot catalog for a date, for consumers without
// an open booking surface.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bad_date", "date query parameter is required")
		return
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_date", "date must be YYYY-MM-DD")
		return
	}
	slots, err := s.slots.SlotsFor(date)
	if err != nil {
		if errors.Is(err, catalog.ErrPastDate) {
			writeError(w, http.StatusBadRequest, "past_date", "appointment date cannot be in the past")
			return
		}
		writeError(w, http.StatusInternalServerError, "slots", "could not compute slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  raw,
		"slots": slots,
	})
}

func filterServices(items []domain.Service, gender domain.Gender) []domain.Service {
	out := make([]domain.Service, 0, len(items))
	for _, s := range items {
		if s.Gender == gender || s.Gender == domain.GenderUnisex {
			out = append(out, s)
		}
	}
	return out
}

func filterCombos(items []domain.Combo, gender domain.Gender) []domain.Combo {
	out := make([]domain.Combo, 0, len(items))
	for _, c := range items {
		if c.Gender == gender || c.Gender == domain.GenderUnisex {
			out = append(out, c)
		}
	}
	return out
}
