package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"jobtracker/internal/auth"
	"jobtracker/internal/backend"
	"jobtracker/internal/cache"
	"jobtracker/internal/errors"
	"jobtracker/internal/events"
	"jobtracker/internal/models"
	"jobtracker/internal/profile"
	"jobtracker/internal/repository/sqlite"
)

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	data   *sqlite.Store
	feed   *events.Local
	server *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	feed := events.NewLocal()
	data, err := sqlite.Open(sqlite.MemoryPath, sqlite.WithNotifier(feed), sqlite.WithLogger(logger))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	c := cache.NewMemory(cache.DefaultOptions())
	profiles := profile.NewService(data, c, time.Minute, logger)
	authSvc := auth.New(data, profiles, c, logger, auth.WithBcryptCost(bcrypt.MinCost))
	client, err := backend.NewClient(authSvc, data, feed)
	if err != nil {
		t.Fatal(err)
	}

	server := New(client, profiles, logger)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		srv.Close()
		server.Close()
		_ = data.Close()
	})
	return &testEnv{t: t, srv: srv, data: data, feed: feed, server: server}
}

func (e *testEnv) do(method, path, token string, body any) (*http.Response, []byte) {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	if err != nil {
		e.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func (e *testEnv) signUp(email string) backend.Session {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": email, "password": "secret1", "full_name": "Test User",
	})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("sign up: %d %s", resp.StatusCode, body)
	}
	var sess backend.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		e.t.Fatal(err)
	}
	return sess
}

func (e *testEnv) addJob(token string, form models.JobForm) models.Job {
	e.t.Helper()
	resp, body := e.do(http.MethodPost, "/jobs", token, form)
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("add job: %d %s", resp.StatusCode, body)
	}
	var j models.Job
	if err := json.Unmarshal(body, &j); err != nil {
		e.t.Fatal(err)
	}
	return j
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func TestJobsRequireSession(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(http.MethodGet, "/jobs", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", resp.StatusCode, body)
	}
	resp, _ = env.do(http.MethodGet, "/jobs", "bogus", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", resp.StatusCode)
	}
}

func TestPipelineTable(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(http.MethodGet, "/pipeline", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	got := decode[struct {
		Stages []struct {
			Status string `json:"status"`
			Color  string `json:"color"`
		} `json:"stages"`
	}](t, body)
	if len(got.Stages) != 6 || got.Stages[0].Status != "bookmarked" || got.Stages[5].Color != "green" {
		t.Fatalf("unexpected stages %+v", got.Stages)
	}
}

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")

	job := env.addJob(sess.AccessToken, models.JobForm{
		Position:  "Engineer",
		Company:   "Acme",
		SalaryMin: "90,000",
		SalaryMax: "120000",
	})
	if job.Status != "bookmarked" || job.UserID != sess.UserID {
		t.Fatalf("unexpected job %+v", job)
	}

	resp, body := env.do(http.MethodPatch, "/jobs/"+job.ID+"/status", sess.AccessToken, map[string]string{"status": "interview"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d %s", resp.StatusCode, body)
	}
	if got := decode[models.Job](t, body); got.Status != "interviewing" {
		t.Fatalf("expected legacy alias to resolve, got %q", got.Status)
	}

	resp, body = env.do(http.MethodPatch, "/jobs/"+job.ID+"/rating", sess.AccessToken, map[string]int{"rating": 9})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for rating 9, got %d %s", resp.StatusCode, body)
	}

	form := models.FormFromJob(job)
	form.Notes = "phone screen booked"
	form.Status = "applied"
	resp, body = env.do(http.MethodPut, "/jobs/"+job.ID, sess.AccessToken, form)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}

	persisted, err := env.data.SelectJobs(context.Background(), sess.UserID)
	if err != nil || len(persisted) != 1 {
		t.Fatalf("unexpected persisted jobs %v, %v", persisted, err)
	}
	if persisted[0].Notes != "phone screen booked" || persisted[0].Status != "applied" || *persisted[0].SalaryMin != 90000 {
		t.Fatalf("update not persisted: %+v", persisted[0])
	}

	resp, _ = env.do(http.MethodDelete, "/jobs/"+job.ID, sess.AccessToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = env.do(http.MethodDelete, "/jobs/"+job.ID, sess.AccessToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repeat delete should succeed, got %d", resp.StatusCode)
	}
	resp, _ = env.do(http.MethodGet, "/jobs/"+job.ID, sess.AccessToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAddJobValidation(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")

	resp, body := env.do(http.MethodPost, "/jobs", sess.AccessToken, models.JobForm{Company: "Acme", SalaryMin: "lots"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", resp.StatusCode, body)
	}
	got := decode[map[string]errorBody](t, body)["error"]
	if got.Type != errors.ErrTypeValidation || got.Fields["position"] == "" || got.Fields["salary_min"] == "" {
		t.Fatalf("unexpected error body %+v", got)
	}
}

func TestListJobsProjection(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")
	env.addJob(sess.AccessToken, models.JobForm{Position: "Go Engineer", Company: "Acme", Status: "applied"})
	env.addJob(sess.AccessToken, models.JobForm{Position: "Designer", Company: "Globex", Status: "applied"})
	env.addJob(sess.AccessToken, models.JobForm{Position: "SRE", Company: "acme"})

	resp, body := env.do(http.MethodGet, "/jobs?search=ACME&group=status", sess.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	got := decode[listResponse](t, body)
	if got.Total != 3 || got.Shown != 2 {
		t.Fatalf("expected 2 of 3 shown, got %d of %d", got.Shown, got.Total)
	}
	keys := map[string]int{}
	for _, b := range got.Buckets {
		keys[b.Key] = len(b.Jobs)
	}
	if len(keys) != 2 || keys["applied"] != 1 || keys["bookmarked"] != 1 {
		t.Fatalf("unexpected buckets %+v", got.Buckets)
	}

	resp, body = env.do(http.MethodGet, "/jobs?status=negotiating", sess.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatal(resp.StatusCode)
	}
	if got := decode[listResponse](t, body); len(got.Buckets) != 0 {
		t.Fatalf("expected no buckets, got %+v", got.Buckets)
	}
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")
	env.addJob(sess.AccessToken, models.JobForm{Position: "A", Company: "X", Status: "applied", SalaryMax: "80000"})
	env.addJob(sess.AccessToken, models.JobForm{Position: "B", Company: "Y", Status: "accepted"})

	resp, body := env.do(http.MethodGet, "/analytics", sess.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analytics: %d %s", resp.StatusCode, body)
	}
	got := decode[struct {
		Summary struct {
			Total  int `json:"total"`
			Active int `json:"active"`
		} `json:"summary"`
		AverageSalary  string `json:"average_salary_display"`
		ConversionRate string `json:"conversion_rate_display"`
	}](t, body)
	if got.Summary.Total != 2 || got.Summary.Active != 2 {
		t.Fatalf("unexpected summary %+v", got.Summary)
	}
	if got.AverageSalary != "$80,000" || got.ConversionRate != "50%" {
		t.Fatalf("unexpected display values %q %q", got.AverageSalary, got.ConversionRate)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	ada := env.signUp("ada@example.com")
	bob := env.signUp("bob@example.com")
	job := env.addJob(ada.AccessToken, models.JobForm{Position: "P", Company: "C"})

	resp, _ := env.do(http.MethodGet, "/jobs/"+job.ID, bob.AccessToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's job, got %d", resp.StatusCode)
	}
	resp, body := env.do(http.MethodGet, "/jobs", bob.AccessToken, nil)
	if got := decode[listResponse](t, body); resp.StatusCode != http.StatusOK || got.Total != 0 {
		t.Fatalf("expected empty list for bob, got %d %+v", resp.StatusCode, got)
	}
}

func TestExternalWriteReachesStore(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")
	env.addJob(sess.AccessToken, models.JobForm{Position: "P", Company: "C"})

	now := time.Now().UTC()
	if _, err := env.data.InsertJob(context.Background(), models.Job{
		ID: "from-elsewhere", UserID: sess.UserID, Position: "Q", Company: "D",
		Status: "applied", DateSaved: now, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	resp, body := env.do(http.MethodGet, "/jobs", sess.AccessToken, nil)
	if got := decode[listResponse](t, body); resp.StatusCode != http.StatusOK || got.Total != 2 {
		t.Fatalf("expected change feed to reload store, got %d %+v", resp.StatusCode, got)
	}
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")

	resp, body := env.do(http.MethodGet, "/profile", sess.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get profile: %d %s", resp.StatusCode, body)
	}
	got := decode[map[string]*models.Profile](t, body)["profile"]
	if got == nil || got.FullName != "Test User" {
		t.Fatalf("expected profile created at sign up, got %+v", got)
	}

	resp, body = env.do(http.MethodPut, "/profile", sess.AccessToken, models.Profile{FullName: "Ada", Website: "ada.dev"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad website, got %d %s", resp.StatusCode, body)
	}
	resp, body = env.do(http.MethodPut, "/profile", sess.AccessToken, models.Profile{FullName: "Ada", Website: "https://ada.dev"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put profile: %d %s", resp.StatusCode, body)
	}
	if p := decode[map[string]models.Profile](t, body)["profile"]; p.UserID != sess.UserID || p.Website != "https://ada.dev" {
		t.Fatalf("unexpected saved profile %+v", p)
	}
}

func TestSignOutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")

	resp, _ := env.do(http.MethodPost, "/auth/signout", sess.AccessToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("sign out: %d", resp.StatusCode)
	}
	resp, _ = env.do(http.MethodGet, "/auth/session", sess.AccessToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after sign out, got %d", resp.StatusCode)
	}

	resp, body := env.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "ada@example.com", "password": "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign in: %d %s", resp.StatusCode, body)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	cases := map[error]int{
		errors.Validation("bad", nil):   http.StatusBadRequest,
		errors.AuthRequired("no user"):  http.StatusUnauthorized,
		errors.NotFound("gone", nil):    http.StatusNotFound,
		errors.Conflict("dup", nil):     http.StatusConflict,
		errors.Fetch("load", nil):       http.StatusBadGateway,
		errors.Write("save", nil):       http.StatusBadGateway,
		errors.Unavailable("down", nil): http.StatusServiceUnavailable,
		io.EOF:                          http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusCode(err); got != want {
			t.Errorf("%v: expected %d, got %d", err, want, got)
		}
	}
}

func TestParsePosting(t *testing.T) {
	env := newTestEnv(t)
	sess := env.signUp("ada@example.com")

	resp, body := env.do(http.MethodPost, "/jobs/parse", sess.AccessToken, map[string]string{
		"text": "Initech | Austin, TX | Platform Engineer\n$130k - $160k",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("parse: %d %s", resp.StatusCode, body)
	}
	got := decode[struct {
		Form models.JobForm `json:"form"`
	}](t, body)
	if got.Form.Company != "Initech" || got.Form.SalaryMin != "130000" {
		t.Fatalf("unexpected form %+v", got.Form)
	}

	resp, _ = env.do(http.MethodPost, "/jobs/parse", sess.AccessToken, map[string]string{"text": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", resp.StatusCode)
	}
	if all, _ := env.data.SelectJobs(context.Background(), sess.UserID); len(all) != 0 {
		t.Fatalf("parse must not save, found %d jobs", len(all))
	}
}
