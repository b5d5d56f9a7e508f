package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	rxdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/freshness"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/middleware"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/session"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
	ucAppointment "github.com/BruksfildServices01/clinic-sync/internal/usecase/appointment"
	ucPrescription "github.com/BruksfildServices01/clinic-sync/internal/usecase/prescription"
)

var doctor = models.Owner{Role: models.RoleDoctor, ID: 9}

type stubEngine struct {
	view    *syncengine.View
	outcome syncengine.AppointmentOutcome
	err     error
	rx      syncengine.PrescriptionOutcome
	reason  string
}

func (s *stubEngine) GetAppointments(context.Context, syncengine.Filter) (*syncengine.View, error) {
	return s.view, s.err
}

func (s *stubEngine) GetAppointment(_ context.Context, id int64) (*models.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Appointment{ID: id, Status: "pending"}, nil
}

func (s *stubEngine) RequestCancel(context.Context, int64) (syncengine.AppointmentOutcome, error) {
	return s.outcome, s.err
}

func (s *stubEngine) RequestConfirm(context.Context, int64) (syncengine.AppointmentOutcome, error) {
	return s.outcome, s.err
}

func (s *stubEngine) RequestReject(_ context.Context, _ int64, reason string) (syncengine.AppointmentOutcome, error) {
	s.reason = reason
	return s.outcome, s.err
}

func (s *stubEngine) RequestComplete(context.Context, int64) (syncengine.AppointmentOutcome, error) {
	return s.outcome, s.err
}

func (s *stubEngine) CreatePrescription(context.Context, rxdomain.CreateRequest) (syncengine.PrescriptionOutcome, error) {
	return s.rx, s.err
}

func (s *stubEngine) GetPrescription(context.Context, int64) (*models.Prescription, error) {
	return nil, httperr.ErrBusiness(httperr.CodeNotFound)
}

func (s *stubEngine) Watch(ctx context.Context, _ models.Owner) <-chan []models.Appointment {
	ch := make(chan []models.Appointment)
	close(ch)
	return ch
}

type signedIn struct{ ok bool }

func (s signedIn) Owner() (models.Owner, bool) {
	return doctor, s.ok
}

func appointmentRouter(eng *stubEngine, loggedIn bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := NewAppointmentHandler(
		ucAppointment.NewListAppointments(eng),
		ucAppointment.NewGetAppointment(eng),
		ucAppointment.NewCancelAppointment(eng),
		ucAppointment.NewConfirmAppointment(eng),
		ucAppointment.NewRejectAppointment(eng),
		ucAppointment.NewCompleteAppointment(eng),
		ucPrescription.NewGetPrescription(eng),
		eng,
	)
	rx := NewPrescriptionHandler(ucPrescription.NewCreatePrescription(eng))

	api := r.Group("/api", middleware.SessionRequired(signedIn{ok: loggedIn}))
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.GET("/appointments/:id/prescription", h.Prescription)
	api.PATCH("/appointments/:id/cancel", h.Cancel)
	api.PATCH("/appointments/:id/reject", h.Reject)
	api.POST("/prescriptions", rx.Create)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e httperr.HTTPError
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e.Code
}

func TestListAppointments(t *testing.T) {
	eng := &stubEngine{view: &syncengine.View{
		Owner:        doctor,
		Appointments: []models.Appointment{{ID: 1}, {ID: 2}},
		Stale:        true,
	}}
	r := appointmentRouter(eng, true)

	w := do(r, http.MethodGet, "/api/appointments?filter=upcoming", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Total int  `json:"total"`
		Stale bool `json:"stale"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || !body.Stale {
		t.Fatalf("unexpected body %+v", body)
	}

	w = do(r, http.MethodGet, "/api/appointments?filter=tomorrow", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown filter: expected 400, got %d", w.Code)
	}
}

func TestSessionRequired(t *testing.T) {
	r := appointmentRouter(&stubEngine{view: &syncengine.View{}}, false)

	w := do(r, http.MethodGet, "/api/appointments", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if code := errorCode(t, w); code != httperr.CodeNotLoggedIn {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestWriteOutcomeStatus(t *testing.T) {
	cases := []struct {
		name   string
		kind   syncengine.OutcomeKind
		status int
	}{
		{"applied", syncengine.Applied, http.StatusOK},
		{"queued", syncengine.Queued, http.StatusAccepted},
		{"rejected", syncengine.Rejected, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &stubEngine{outcome: syncengine.AppointmentOutcome{Kind: tc.kind}}
			w := do(appointmentRouter(eng, true), http.MethodPatch, "/api/appointments/4/cancel", nil)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestWriteErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid transition", httperr.ErrBusiness(httperr.CodeInvalidTransition), http.StatusConflict, httperr.CodeInvalidTransition},
		{"pending change", httperr.ErrBusiness(httperr.CodePendingChange), http.StatusConflict, httperr.CodePendingChange},
		{"role", httperr.ErrBusiness(httperr.CodeForbiddenForRole), http.StatusForbidden, httperr.CodeForbiddenForRole},
		{"missing", httperr.ErrBusiness(httperr.CodeNotFound), http.StatusNotFound, httperr.CodeNotFound},
		{"storage", httperr.Storage("update appointment", errors.New("disk full")), http.StatusServiceUnavailable, httperr.KindStorageFailure.String()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(appointmentRouter(&stubEngine{err: tc.err}, true), http.MethodPatch, "/api/appointments/4/cancel", nil)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			if code := errorCode(t, w); code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, code)
			}
		})
	}

	t.Run("bad id", func(t *testing.T) {
		w := do(appointmentRouter(&stubEngine{}, true), http.MethodPatch, "/api/appointments/abc/cancel", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestRejectReason(t *testing.T) {
	eng := &stubEngine{outcome: syncengine.AppointmentOutcome{Kind: syncengine.Applied}}
	r := appointmentRouter(eng, true)

	w := do(r, http.MethodPatch, "/api/appointments/4/reject", RejectRequest{Reason: "  doctor away  "})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if eng.reason != "doctor away" {
		t.Fatalf("reason not trimmed: %q", eng.reason)
	}

	eng.reason = "unset"
	w = do(r, http.MethodPatch, "/api/appointments/4/reject", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body: expected 200, got %d", w.Code)
	}
	if eng.reason != "" {
		t.Fatalf("expected empty reason, got %q", eng.reason)
	}
}

func TestCreatePrescription(t *testing.T) {
	eng := &stubEngine{rx: syncengine.PrescriptionOutcome{Kind: syncengine.Queued}}
	r := appointmentRouter(eng, true)

	valid := rxdomain.CreateRequest{
		AppointmentID: 4,
		Medications: []models.Medication{
			{Name: "Ibuprofen", Dosage: "400mg", Frequency: "8/8h"},
		},
	}
	if w := do(r, http.MethodPost, "/api/prescriptions", valid); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	invalid := rxdomain.CreateRequest{AppointmentID: 4, Medications: []models.Medication{{Name: "Ibuprofen"}}}
	if w := do(r, http.MethodPost, "/api/prescriptions", invalid); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	if w := do(r, http.MethodGet, "/api/appointments/4/prescription", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing prescription: expected 404, got %d", w.Code)
	}
}

type stubSessions struct {
	id  session.Identity
	err error
	in  bool
}

func (s *stubSessions) Login(context.Context, string, string) (session.Identity, error) {
	if s.err != nil {
		return session.Identity{}, s.err
	}
	s.in = true
	return s.id, nil
}

func (s *stubSessions) Logout() error {
	s.in = false
	return nil
}

func (s *stubSessions) Identity() (session.Identity, bool) {
	return s.id, s.in
}

func TestAuthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	build := func(s *stubSessions, triggered *int) *gin.Engine {
		h := NewAuthHandler(s, freshness.NewMemoryTracker(time.Hour), func() { *triggered++ })
		r := gin.New()
		r.POST("/login", h.Login)
		r.POST("/logout", h.Logout)
		r.GET("/me", h.Me)
		return r
	}

	t.Run("online login triggers a pass", func(t *testing.T) {
		var n int
		s := &stubSessions{id: session.Identity{Role: models.RoleDoctor, UserID: 9}}
		r := build(s, &n)

		w := do(r, http.MethodPost, "/login", LoginRequest{Email: " Ana@Clinic.example ", Password: "pw"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if n != 1 {
			t.Fatalf("expected one trigger, got %d", n)
		}
		if w := do(r, http.MethodGet, "/me", nil); w.Code != http.StatusOK {
			t.Fatalf("me: expected 200, got %d", w.Code)
		}
		if w := do(r, http.MethodPost, "/logout", nil); w.Code != http.StatusNoContent {
			t.Fatalf("logout: expected 204, got %d", w.Code)
		}
		if w := do(r, http.MethodGet, "/me", nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("me after logout: expected 401, got %d", w.Code)
		}
	})

	t.Run("offline unlock does not trigger", func(t *testing.T) {
		var n int
		r := build(&stubSessions{id: session.Identity{Role: models.RolePatient, UserID: 2, Offline: true}}, &n)

		if w := do(r, http.MethodPost, "/login", LoginRequest{Email: "p@clinic.example", Password: "pw"}); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if n != 0 {
			t.Fatalf("offline login must not trigger a pass")
		}
	})

	t.Run("login and logout clear the freshness mark", func(t *testing.T) {
		ctx := context.Background()
		fresh := freshness.NewMemoryTracker(time.Hour)
		s := &stubSessions{id: session.Identity{Role: models.RoleDoctor, UserID: 9, Offline: true}}
		h := NewAuthHandler(s, fresh, nil)
		r := gin.New()
		r.POST("/login", h.Login)
		r.POST("/logout", h.Logout)

		_ = fresh.MarkFresh(ctx, doctor)
		if w := do(r, http.MethodPost, "/login", LoginRequest{Email: "d@clinic.example", Password: "pw"}); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if ok, _ := fresh.IsFresh(ctx, doctor); ok {
			t.Fatalf("login must invalidate the owner's mark")
		}

		_ = fresh.MarkFresh(ctx, doctor)
		if w := do(r, http.MethodPost, "/logout", nil); w.Code != http.StatusNoContent {
			t.Fatalf("logout: expected 204, got %d", w.Code)
		}
		if ok, _ := fresh.IsFresh(ctx, doctor); ok {
			t.Fatalf("logout must invalidate the owner's mark")
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		var n int
		w := do(build(&stubSessions{}, &n), http.MethodPost, "/login", LoginRequest{Email: "nobody", Password: "pw"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if code := errorCode(t, w); code != "invalid_email" {
			t.Fatalf("unexpected code %q", code)
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		var n int
		s := &stubSessions{err: httperr.ErrBusiness(httperr.CodeInvalidCreds)}
		w := do(build(s, &n), http.MethodPost, "/login", LoginRequest{Email: "a@clinic.example", Password: "x"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})
}

type stubSyncer struct {
	err  error
	logs []models.SyncLog
	lim  int
}

func (s *stubSyncer) Reconcile(context.Context, models.Owner) (*syncengine.PassResult, error) {
	return &syncengine.PassResult{}, s.err
}

func (s *stubSyncer) Status(context.Context) (syncengine.Status, error) {
	return syncengine.Status{}, nil
}

func (s *stubSyncer) List(_ context.Context, _ models.Owner, limit int) ([]models.SyncLog, error) {
	s.lim = limit
	return s.logs, nil
}

func withOwner(c *gin.Context) {
	c.Set(middleware.ContextOwner, doctor)
	c.Next()
}

func TestSyncHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	build := func(s *stubSyncer) *gin.Engine {
		h := NewSyncHandler(s, s)
		r := gin.New()
		r.Use(withOwner)
		r.POST("/sync", h.Run)
		r.GET("/sync/status", h.Status)
		r.GET("/sync/journal", h.Journal)
		return r
	}

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"auth", fmt.Errorf("%w: %w", syncengine.ErrAuthRequired, httperr.New(httperr.KindUnauthorized, "list", nil)), http.StatusUnauthorized},
		{"offline", httperr.New(httperr.KindNetworkUnreachable, "list", errors.New("dial")), http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(build(&stubSyncer{err: tc.err}), http.MethodPost, "/sync", nil)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
		})
	}

	t.Run("journal limit", func(t *testing.T) {
		s := &stubSyncer{logs: []models.SyncLog{{Action: "push"}}}
		r := build(s)

		if w := do(r, http.MethodGet, "/sync/journal?limit=20", nil); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s.lim != 20 {
			t.Fatalf("expected limit 20, got %d", s.lim)
		}

		do(r, http.MethodGet, "/sync/journal?limit=9000", nil)
		if s.lim != 100 {
			t.Fatalf("oversized limit must fall back to 100, got %d", s.lim)
		}
	})
}

func TestBackupDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withOwner)
	r.POST("/backup", NewBackupHandler(nil).Export)

	w := do(r, http.MethodPost, "/backup", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "backup_disabled" {
		t.Fatalf("unexpected code %q", code)
	}
}

type stubReads struct {
	marked []int64
}

func (s *stubReads) List(context.Context, models.Owner, int) ([]models.Notification, error) {
	return nil, nil
}

func (s *stubReads) MarkRead(_ context.Context, id int64) error {
	if id == 404 {
		return httperr.ErrBusiness(httperr.CodeNotFound)
	}
	s.marked = append(s.marked, id)
	return nil
}

func TestNotificationHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &stubReads{}
	h := NewNotificationHandler(s, s)
	r := gin.New()
	r.Use(withOwner)
	r.GET("/notifications", h.List)
	r.PATCH("/notifications/:id/read", h.MarkRead)

	w := do(r, http.MethodGet, "/notifications", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"data":[]`)) {
		t.Fatalf("expected empty list, got %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodPatch, "/notifications/31/read", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(r, http.MethodPatch, "/notifications/404/read", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if len(s.marked) != 1 || s.marked[0] != 31 {
		t.Fatalf("unexpected marks %v", s.marked)
	}
}

type stubImages struct {
	file    string
	fetched []string
}

func (s *stubImages) Path(string) (string, bool) { return "", false }

func (s *stubImages) Fetch(_ context.Context, src string) (string, error) {
	s.fetched = append(s.fetched, src)
	return s.file, nil
}

type ownerAppointments []models.Appointment

func (o ownerAppointments) QueryByOwner(context.Context, models.Owner) ([]models.Appointment, error) {
	return o, nil
}

func TestMediaHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	file := filepath.Join(t.TempDir(), "a.webp")
	if err := os.WriteFile(file, []byte("RIFF"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	images := &stubImages{file: file}
	appts := ownerAppointments{{ID: 1, DoctorImage: "https://cdn.example/grey.png"}}

	r := gin.New()
	r.Use(withOwner)
	r.GET("/media", NewMediaHandler(images, appts).Get)

	if w := do(r, http.MethodGet, "/media?src=file:///etc/passwd", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	// arbitrary urls are never downloaded
	if w := do(r, http.MethodGet, "/media?src=http://10.0.0.1/admin", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if len(images.fetched) != 0 {
		t.Fatalf("unknown source fetched: %v", images.fetched)
	}

	w := do(r, http.MethodGet, "/media?src=https://cdn.example/grey.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(images.fetched) != 1 || images.fetched[0] != "https://cdn.example/grey.png" {
		t.Fatalf("expected one fetch of the doctor image, got %v", images.fetched)
	}
}
