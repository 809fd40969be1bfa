package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"salonfront/internal/booking"
	"salonfront/internal/catalog"
	"salonfront/internal/util"
	"salonfront/pkg/domain"
)

// Variant selects the presentation surface. Both are thin adapters over
// the same form engine; they differ only in the terminal action after a
// successful booking.
type Variant string

const (
	VariantModal Variant = "modal"
	VariantPage  Variant = "page"
)

// staleAfter bounds how long an abandoned surface is kept before the sweep
// reclaims it.
const staleAfter = 12 * time.Hour

type surface struct {
	ID        string
	Variant   Variant
	VisitorID string
	Form      *booking.Form
	CreatedAt time.Time
}

// onClose is the presenter's terminal action once the confirmation delay
// has elapsed.
func (s *surface) onClose() string {
	if s.Variant == VariantPage {
		return "navigate:/profile"
	}
	return "close"
}

type surfaceSet struct {
	mu sync.Mutex
	m  map[string]*surface
}

func newSurfaceSet() *surfaceSet {
	return &surfaceSet{m: make(map[string]*surface)}
}

func (set *surfaceSet) put(sf *surface) {
	set.mu.Lock()
	set.m[sf.ID] = sf
	set.mu.Unlock()
}

func (set *surfaceSet) get(id, visitorID string) (*surface, bool) {
	set.mu.Lock()
	defer set.mu.Unlock()
	sf, ok := set.m[id]
	if !ok || sf.VisitorID != visitorID {
		return nil, false
	}
	return sf, ok
}

func (set *surfaceSet) remove(id string) {
	set.mu.Lock()
	if sf, ok := set.m[id]; ok {
		sf.Form.Close()
		delete(set.m, id)
	}
	set.mu.Unlock()
}

// sweep reclaims surfaces whose confirmation delay has long passed and
// abandoned ones nobody closed.
func (set *surfaceSet) sweep(now time.Time, confirmDelay time.Duration) {
	set.mu.Lock()
	defer set.mu.Unlock()
	for id, sf := range set.m {
		snap := sf.Form.Snapshot()
		succeededAndGone := snap.Phase == booking.PhaseSucceeded &&
			now.After(snap.SucceededAt.Add(confirmDelay+time.Minute))
		if succeededAndGone || now.After(sf.CreatedAt.Add(staleAfter)) {
			sf.Form.Close()
			delete(set.m, id)
		}
	}
}

type surfaceRequest struct {
	Variant string `json:"variant"`
	Service string `json:"service"`
	Combo   string `json:"combo"`
}

type patchRequest struct {
	Date  *string `json:"date"`
	Slot  *string `json:"slot"`
	Notes *string `json:"notes"`
}

type draftView struct {
	Services []string `json:"services"`
	Combo    string   `json:"combo,omitempty"`
	Date     string   `json:"date,omitempty"`
	Slot     string   `json:"slot,omitempty"`
	Notes    string   `json:"notes"`
}

type failureView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type surfaceView struct {
	ID       string            `json:"id"`
	Variant  Variant           `json:"variant"`
	Phase    booking.Phase     `json:"phase"`
	Draft    draftView         `json:"draft"`
	Slots    []domain.TimeSlot `json:"slots"`
	Error    *failureView      `json:"error,omitempty"`
	ClosesAt string            `json:"closesAt,omitempty"`
	OnClose  string            `json:"onClose,omitempty"`
}

func (s *Server) viewOf(sf *surface, snap booking.Snapshot) surfaceView {
	view := surfaceView{
		ID:      sf.ID,
		Variant: sf.Variant,
		Phase:   snap.Phase,
		Draft: draftView{
			Services: snap.Draft.ServiceIDs,
			Combo:    snap.Draft.ComboID,
			Slot:     snap.Draft.Slot,
			Notes:    snap.Draft.Notes,
		},
		Slots: snap.Slots,
	}
	if view.Draft.Services == nil {
		view.Draft.Services = []string{}
	}
	if !snap.Draft.Date.IsZero() {
		view.Draft.Date = snap.Draft.Date.Format("2006-01-02")
	}
	if snap.Failure != nil {
		view.Error = &failureView{
			Kind:    string(snap.Failure.Kind),
			Message: snap.Failure.DisplayMessage(),
		}
	}
	if snap.Phase == booking.PhaseSucceeded {
		view.ClosesAt = snap.SucceededAt.Add(s.confirmDelay).Format(time.RFC3339)
		view.OnClose = sf.onClose()
	}
	return view
}

// handleSurfaces opens a booking surface for the signed-in visitor.
func (s *Server) handleSurfaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	_, vid, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req surfaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	variant := Variant(strings.TrimSpace(req.Variant))
	if variant != VariantModal && variant != VariantPage {
		writeError(w, http.StatusBadRequest, "bad_variant", "variant must be modal or page")
		return
	}
	if req.Service != "" && req.Combo != "" {
		writeError(w, http.StatusBadRequest, "bad_preselection", "preselect a service or a combo, not both")
		return
	}

	form := booking.NewForm(s.slots, &submitAdapter{salon: s.salon}).WithClock(s.now)
	// An auth rejection from the backend invalidates the stored session so
	// the visitor is prompted to sign in again.
	form.Subscribe(func(snap booking.Snapshot) {
		if snap.Phase == booking.PhaseFailed && snap.Failure != nil && snap.Failure.Kind == booking.FailAuth {
			if err := s.sessions.Clear(context.Background(), vid); err != nil {
				util.LoggerFromContext(r.Context()).Error("clear session after auth rejection", "err", err)
			}
		}
	})
	if err := form.Initialize(domain.Preselection{ServiceID: req.Service, ComboID: req.Combo}); err != nil {
		writeError(w, http.StatusInternalServerError, "surface_init", "could not open booking surface")
		return
	}

	s.surfaces.sweep(s.now(), s.confirmDelay)
	sf := &surface{
		ID:        util.NewID(),
		Variant:   variant,
		VisitorID: vid,
		Form:      form,
		CreatedAt: s.now(),
	}
	s.surfaces.put(sf)
	writeJSON(w, http.StatusCreated, s.viewOf(sf, form.Snapshot()))
}

// handleSurfaceByID routes GET/PATCH/DELETE on a surface and POST on its
// submit action.
func (s *Server) handleSurfaceByID(w http.ResponseWriter, r *http.Request) {
	rec, vid, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/booking/surfaces/")
	id, action, _ := strings.Cut(rest, "/")
	sf, ok := s.surfaces.get(id, vid)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "booking surface not found")
		return
	}

	switch {
	case action == "submit" && r.Method == http.MethodPost:
		s.handleSubmit(w, r, sf, rec.Token)
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.viewOf(sf, sf.Form.Snapshot()))
	case action == "" && r.Method == http.MethodPatch:
		s.handlePatch(w, r, sf)
	case action == "" && r.Method == http.MethodDelete:
		s.surfaces.remove(sf.ID)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, sf *surface) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_date", "date must be YYYY-MM-DD")
			return
		}
		if err := sf.Form.SetDate(date); err != nil {
			writeFormError(w, err)
			return
		}
	}
	if req.Slot != nil {
		if err := sf.Form.SetSlot(*req.Slot); err != nil {
			writeFormError(w, err)
			return
		}
	}
	if req.Notes != nil {
		if err := sf.Form.SetNotes(*req.Notes); err != nil {
			writeFormError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.viewOf(sf, sf.Form.Snapshot()))
}

// handleSubmit dispatches the booking. The response always carries the
// resulting snapshot: validation failures and the in-flight no-op are
// states, not transport errors.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sf *surface, token string) {
	if !s.submitLimiter.Allow(util.ClientIP(r, s.trusted)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many booking attempts, slow down")
		return
	}
	// The submission must outlive this request; the backend client carries
	// its own timeout.
	err := sf.Form.Submit(context.Background(), token)
	switch {
	case err == nil, errors.Is(err, booking.ErrSubmitInFlight),
		errors.Is(err, booking.ErrDateRequired),
		errors.Is(err, booking.ErrSlotRequired),
		errors.Is(err, booking.ErrSelectionRequired):
		writeJSON(w, http.StatusOK, s.viewOf(sf, sf.Form.Snapshot()))
	case errors.Is(err, booking.ErrClosed):
		writeError(w, http.StatusGone, "surface_closed", "booking surface is closed")
	default:
		writeFormError(w, err)
	}
}

func writeFormError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", "appointment date cannot be in the past")
	case errors.Is(err, booking.ErrSlotNotInCatalog):
		writeError(w, http.StatusBadRequest, "bad_slot", "slot is not available for the chosen date")
	case errors.Is(err, booking.ErrNotEditable):
		writeError(w, http.StatusConflict, "not_editable", "booking can no longer be edited")
	case errors.Is(err, booking.ErrClosed):
		writeError(w, http.StatusGone, "surface_closed", "booking surface is closed")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}
