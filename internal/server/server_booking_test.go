package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"salonfront/internal/catalog"
	"salonfront/internal/salonclient"
	"salonfront/internal/session"
	"salonfront/pkg/domain"
)

var testToday = time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv      *Server
	http     *httptest.Server
	sessions *session.FileStore
}

// newTestEnv wires a server against the given fake backend with a fixed
// clock and a file session store.
func newTestEnv(t *testing.T, backend *httptest.Server) *testEnv {
	t.Helper()
	redis := miniredis.RunT(t)
	sessions, err := session.NewFileStore(t.TempDir(), session.DefaultMaxAge)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	sessions.WithClock(func() time.Time { return testToday })
	slots := catalog.NewStaticProvider(9, 17).
		WithClock(func() time.Time { return testToday })
	srv, err := New(Config{
		Salon:             salonclient.NewClient(backend.URL, time.Second, salonclient.HeaderBearer),
		Sessions:          sessions,
		Slots:             slots,
		RedisAddr:         redis.Addr(),
		ConfirmationDelay: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.now = func() time.Time { return testToday }
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, sessions: sessions}
}

// signIn seeds a persisted session and returns the visitor cookie value.
func (e *testEnv) signIn(t *testing.T, visitorID string) {
	t.Helper()
	rec := session.Record{
		Token: "tok-1",
		Profile: domain.Session{
			SubjectID:   "user-1",
			DisplayName: "Asha",
			Email:       "asha@example.com",
			Role:        domain.RoleCustomer,
			IssuedAt:    testToday,
		},
	}
	if err := e.sessions.Save(context.Background(), visitorID, rec); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, visitorID string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if visitorID != "" {
		req.AddCookie(&http.Cookie{Name: visitorCookie, Value: visitorID})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func decodeView(t *testing.T, data []byte) surfaceView {
	t.Helper()
	var view surfaceView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode surface view: %v (%s)", err, data)
	}
	return view
}

func (e *testEnv) waitPhase(t *testing.T, id, visitorID string, phase string) surfaceView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, data := e.do(t, http.MethodGet, "/api/booking/surfaces/"+id, visitorID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get surface: status %d (%s)", resp.StatusCode, data)
		}
		view := decodeView(t, data)
		if string(view.Phase) == phase {
			return view
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for phase %q, last %q", phase, view.Phase)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// bookingBackend fakes the salon API's appointment endpoint.
func bookingBackend(calls *int32, status int, body map[string]any, release chan struct{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appointments" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(calls, 1)
		if release != nil {
			<-release
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestModalBookingFlowSucceeds(t *testing.T) {
	var calls int32
	backend := bookingBackend(&calls, http.StatusCreated, map[string]any{"_id": "appt-1"}, nil)
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	resp, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create surface: status %d (%s)", resp.StatusCode, data)
	}
	view := decodeView(t, data)
	if view.Phase != "editing" || len(view.Draft.Services) != 1 || view.Draft.Services[0] != "svc_1" {
		t.Fatalf("unexpected initial view: %+v", view)
	}

	resp, data = env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "10:00 AM"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status %d (%s)", resp.StatusCode, data)
	}
	patched := decodeView(t, data)
	if patched.Draft.Date != "2025-06-10" || patched.Draft.Slot != "10:00 AM" || len(patched.Slots) != 9 {
		t.Fatalf("unexpected patched view: %+v", patched)
	}

	resp, data = env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d (%s)", resp.StatusCode, data)
	}
	final := env.waitPhase(t, view.ID, "v1", "succeeded")
	if final.ClosesAt == "" || final.OnClose != "close" {
		t.Fatalf("succeeded modal surface must schedule a close, got %+v", final)
	}
	closesAt, err := time.Parse(time.RFC3339, final.ClosesAt)
	if err != nil {
		t.Fatalf("parse closesAt: %v", err)
	}
	if got := closesAt.Sub(testToday); got != 2*time.Second {
		t.Fatalf("confirmation delay should be 2s, got %v", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one backend call, got %d", calls)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/booking/surfaces/"+view.ID, "v1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete surface: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/booking/surfaces/"+view.ID, "v1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("closed surface should be gone, got %d", resp.StatusCode)
	}
}

func TestPageVariantNavigatesOnSuccess(t *testing.T) {
	var calls int32
	backend := bookingBackend(&calls, http.StatusCreated, map[string]any{"_id": "appt-1"}, nil)
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "page", "combo": "combo_1"})
	view := decodeView(t, data)
	if view.Draft.Combo != "combo_1" {
		t.Fatalf("combo preselection should seed the draft: %+v", view)
	}
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "9:00 AM"})
	env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)

	final := env.waitPhase(t, view.ID, "v1", "succeeded")
	if final.OnClose != "navigate:/profile" {
		t.Fatalf("page surface should navigate to the profile, got %q", final.OnClose)
	}
}

func TestSurfaceRequiresSession(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "anon",
		map[string]string{"variant": "modal", "service": "svc_1"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d (%s)", resp.StatusCode, data)
	}
}

func TestSurfaceOwnership(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")
	env.signIn(t, "v2")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)

	resp, _ := env.do(t, http.MethodGet, "/api/booking/surfaces/"+view.ID, "v2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("another visitor must not see the surface, got %d", resp.StatusCode)
	}
}

func TestSubmitValidationNeverHitsBackend(t *testing.T) {
	var calls int32
	backend := bookingBackend(&calls, http.StatusCreated, map[string]any{"_id": "x"}, nil)
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)

	resp, data := env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d (%s)", resp.StatusCode, data)
	}
	failed := decodeView(t, data)
	if failed.Phase != "failed" || failed.Error == nil || failed.Error.Kind != "validation" {
		t.Fatalf("expected a local validation failure, got %+v", failed)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("validation failures must not reach the backend")
	}
}

func TestDoubleSubmitSingleBackendCall(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	backend := bookingBackend(&calls, http.StatusCreated, map[string]any{"_id": "appt-1"}, release)
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "10:00 AM"})

	env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)
	resp, data := env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second submit should be a 200 no-op, got %d (%s)", resp.StatusCode, data)
	}
	if decodeView(t, data).Phase != "submitting" {
		t.Fatalf("second submit should report the in-flight phase")
	}
	close(release)
	env.waitPhase(t, view.ID, "v1", "succeeded")
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one backend call, got %d", calls)
	}
}

func TestBackendRejectionSurfacesVerbatim(t *testing.T) {
	var calls int32
	backend := bookingBackend(&calls, http.StatusBadRequest, map[string]any{"msg": "Slot unavailable"}, nil)
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "10:00 AM", "notes": "please be gentle"})
	env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)

	failed := env.waitPhase(t, view.ID, "v1", "failed")
	if failed.Error == nil || failed.Error.Message != "Slot unavailable" {
		t.Fatalf("failure reason must surface verbatim, got %+v", failed.Error)
	}
	// Draft stays intact for correction.
	if failed.Draft.Slot != "10:00 AM" || failed.Draft.Notes != "please be gentle" {
		t.Fatalf("draft must survive a rejection, got %+v", failed.Draft)
	}
}

func TestAuthRejectionClearsSession(t *testing.T) {
	var calls int32
	backend := bookingBackend(&calls, http.StatusUnauthorized, map[string]any{"msg": "Token is not valid"}, nil)
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "10:00 AM"})
	env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)

	// The failed submission invalidates the stored session.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := env.sessions.Load(context.Background(), "v1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("auth rejection should clear the persisted session")
		}
		time.Sleep(20 * time.Millisecond)
	}
	resp, _ := env.do(t, http.MethodGet, "/api/booking/surfaces/"+view.ID, "v1", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cleared session should force re-authentication, got %d", resp.StatusCode)
	}
}

func TestPatchRejectsPastDate(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)

	resp, data := env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-01"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("past date should be rejected, got %d (%s)", resp.StatusCode, data)
	}
}

func TestPatchRejectsOutOfCatalogSlot(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10"})

	resp, _ := env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"slot": "10:30 AM"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-catalog slot should be rejected, got %d", resp.StatusCode)
	}
}

func TestDateChangeClearsSlotOverHTTP(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "10:00 AM"})

	_, data = env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-11"})
	moved := decodeView(t, data)
	if moved.Draft.Slot != "" {
		t.Fatalf("changing the date must clear the slot, got %q", moved.Draft.Slot)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, data := env.do(t, http.MethodGet, "/api/booking/slots?date=2025-06-10", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("slots: status %d (%s)", resp.StatusCode, data)
	}
	var out struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(out.Slots) != 9 || out.Slots[0] != "9:00 AM" || out.Slots[8] != "5:00 PM" {
		t.Fatalf("unexpected slots: %v", out.Slots)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/booking/slots?date=2025-06-01", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("past date should be rejected, got %d", resp.StatusCode)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	var calls int32
	backend := bookingBackend(&calls, http.StatusCreated, map[string]any{"_id": "x"}, nil)
	defer backend.Close()

	redis := miniredis.RunT(t)
	sessions, err := session.NewFileStore(t.TempDir(), session.DefaultMaxAge)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	sessions.WithClock(func() time.Time { return testToday })
	srv, err := New(Config{
		Salon:                    salonclient.NewClient(backend.URL, time.Second, salonclient.HeaderBearer),
		Sessions:                 sessions,
		Slots:                    catalog.NewStaticProvider(9, 17).WithClock(func() time.Time { return testToday }),
		RedisAddr:                redis.Addr(),
		SubmitRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.now = func() time.Time { return testToday }
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	env := &testEnv{srv: srv, http: ts, sessions: sessions}
	env.signIn(t, "v1")

	_, data := env.do(t, http.MethodPost, "/api/booking/surfaces", "v1",
		map[string]string{"variant": "modal", "service": "svc_1"})
	view := decodeView(t, data)
	env.do(t, http.MethodPatch, "/api/booking/surfaces/"+view.ID, "v1",
		map[string]string{"date": "2025-06-10", "slot": "10:00 AM"})

	env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)
	env.waitPhase(t, view.ID, "v1", "succeeded")

	resp, _ := env.do(t, http.MethodPost, "/api/booking/surfaces/"+view.ID+"/submit", "v1", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the submit budget, got %d", resp.StatusCode)
	}
}
