package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"salonfront/internal/catalog"
	"salonfront/internal/salonclient"
	"salonfront/internal/session"
)

// salonBackend fakes the upstream salon API's auth and profile endpoints.
func salonBackend() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Invalid credentials"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token": "backend-token",
				"user": map[string]string{
					"_id": "user-1", "name": "Asha", "email": req.Email, "role": "user",
				},
			})
		case "/api/auth/register":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token": "backend-token",
				"user": map[string]string{
					"_id": "user-2", "name": "Ravi", "email": "ravi@example.com", "role": "user",
				},
			})
		case "/api/appointments/my":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"_id": "appt-1", "timeSlot": "10:00 AM", "status": "pending"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLoginPersistsSessionAndProfileRoundTrip(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, data := env.do(t, http.MethodPost, "/api/auth/login", "v1",
		map[string]string{"email": "Asha@Example.com", "password": "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d (%s)", resp.StatusCode, data)
	}
	var loginOut struct {
		User struct {
			Email string `json:"email"`
			Name  string `json:"displayName"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &loginOut); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	// Email is normalized before it reaches the backend.
	if loginOut.User.Email != "asha@example.com" {
		t.Fatalf("unexpected login profile: %+v", loginOut.User)
	}
	rec, ok, err := env.sessions.Load(context.Background(), "v1")
	if err != nil || !ok {
		t.Fatalf("session should be persisted: ok=%v err=%v", ok, err)
	}
	if rec.Token != "backend-token" || !rec.Profile.IssuedAt.Equal(testToday) {
		t.Fatalf("unexpected session record: %+v", rec)
	}

	resp, data = env.do(t, http.MethodGet, "/api/profile", "v1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile: status %d (%s)", resp.StatusCode, data)
	}
	var profileOut struct {
		User struct {
			Name string `json:"displayName"`
		} `json:"user"`
		Appointments []map[string]any `json:"appointments"`
	}
	if err := json.Unmarshal(data, &profileOut); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profileOut.User.Name != "Asha" || len(profileOut.Appointments) != 1 {
		t.Fatalf("unexpected profile payload: %+v", profileOut)
	}
}

func TestLoginRejectionPassesThrough(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, data := env.do(t, http.MethodPost, "/api/auth/login", "v1",
		map[string]string{"email": "asha@example.com", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 from a rejected login, got %d (%s)", resp.StatusCode, data)
	}
	if _, ok, _ := env.sessions.Load(context.Background(), "v1"); ok {
		t.Fatalf("rejected login must not persist a session")
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, _ := env.do(t, http.MethodPost, "/api/auth/login", "v1",
		map[string]string{"email": "", "password": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty credentials, got %d", resp.StatusCode)
	}
}

func TestRegisterSignsIn(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, data := env.do(t, http.MethodPost, "/api/auth/register", "v1",
		map[string]string{"name": "Ravi", "email": "ravi@example.com", "password": "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d (%s)", resp.StatusCode, data)
	}
	if _, ok, _ := env.sessions.Load(context.Background(), "v1"); !ok {
		t.Fatalf("register should persist a session")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()
	env := newTestEnv(t, backend)
	env.signIn(t, "v1")

	resp, _ := env.do(t, http.MethodPost, "/api/auth/logout", "v1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/profile", "v1", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("profile after logout should be 401, got %d", resp.StatusCode)
	}
	// Logging out twice is fine.
	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", "v1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repeat logout: status %d", resp.StatusCode)
	}
}

func TestLoginRateLimited(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()

	redis := miniredis.RunT(t)
	sessions, err := session.NewFileStore(t.TempDir(), session.DefaultMaxAge)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	srv, err := New(Config{
		Salon:                   salonclient.NewClient(backend.URL, time.Second, salonclient.HeaderBearer),
		Sessions:                sessions,
		Slots:                   catalog.NewStaticProvider(9, 17),
		RedisAddr:               redis.Addr(),
		LoginRateLimitPerMinute: 2,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	env := &testEnv{srv: srv, http: ts, sessions: sessions}

	body := map[string]string{"email": "asha@example.com", "password": "wrong"}
	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/auth/login", "v1", body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := env.do(t, http.MethodPost, "/api/auth/login", "v1", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the login budget, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	backend := salonBackend()
	defer backend.Close()
	env := newTestEnv(t, backend)

	resp, data := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d (%s)", resp.StatusCode, data)
	}
}
