package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"loanline/internal/config"
	"loanline/internal/db"
	"loanline/internal/engine"
	"loanline/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func actorHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "tester"}
}

func signTestToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func decodeInto(t *testing.T, data []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/leads", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeInto(t, data, &envelope)
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestJWTAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	headers := map[string]string{"Authorization": "Bearer " + signTestToken(t, "officer-1")}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/leads", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}

	badHeaders := map[string]string{"Authorization": "Bearer not-a-token"}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/leads", nil, badHeaders)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/apikeys", map[string]any{
		"actor_id": "automation",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	decodeInto(t, data, &key)
	if key.Key == "" {
		t.Fatal("expected plaintext key in response")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/leads", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key status %d: %s", res.StatusCode, string(data))
	}
}

func TestLeadTaskFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/leads", map[string]any{
		"first_name": "Dana",
		"last_name":  "Reyes",
		"phone":      "555-0100",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create lead status %d: %s", res.StatusCode, string(data))
	}
	var lead LeadResponse
	decodeInto(t, data, &lead)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"lead_id": lead.ID,
		"title":   "Intro call",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	decodeInto(t, data, &task)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/complete", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var completed CompleteTaskResponse
	decodeInto(t, data, &completed)
	if completed.Task.Status != "complete" {
		t.Fatalf("status = %s", completed.Task.Status)
	}
	if !completed.Validation.CanComplete {
		t.Fatalf("validation = %+v", completed.Validation)
	}
}

func TestCompleteBlockedReturns422WithRemediation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/leads", map[string]any{
		"first_name": "Dana",
		"last_name":  "Reyes",
	}, actorHeaders())
	var lead LeadResponse
	decodeInto(t, data, &lead)

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"lead_id":                lead.ID,
		"title":                  "Follow up with borrower",
		"completion_requirement": "log_note_borrower",
	}, actorHeaders())
	var task TaskResponse
	decodeInto(t, data, &task)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/complete", nil, actorHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("blocked status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Validation struct {
					CanComplete        bool   `json:"can_complete"`
					MissingRequirement string `json:"missing_requirement"`
				} `json:"validation"`
				Remediation struct {
					Kind    string   `json:"kind"`
					Actions []string `json:"actions"`
				} `json:"remediation"`
			} `json:"details"`
		} `json:"error"`
	}
	decodeInto(t, data, &envelope)
	if envelope.Error.Code != "completion_blocked" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.Message != "You must add a note for the borrower before completing this task" {
		t.Fatalf("message = %q", envelope.Error.Message)
	}
	if envelope.Error.Details.Validation.MissingRequirement != "log_note_borrower" {
		t.Fatalf("missing = %q", envelope.Error.Details.Validation.MissingRequirement)
	}
	if envelope.Error.Details.Remediation.Kind == "" {
		t.Fatal("expected a remediation plan")
	}

	// Adding the note unblocks completion.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/leads/"+lead.ID+"/notes", map[string]any{
		"body": "Spoke with borrower about rates",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add note status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/complete", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete after note status %d: %s", res.StatusCode, string(data))
	}
}

func TestRequirementEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/leads", map[string]any{
		"first_name": "Dana",
		"last_name":  "Reyes",
	}, actorHeaders())
	var lead LeadResponse
	decodeInto(t, data, &lead)

	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"lead_id":                lead.ID,
		"title":                  "Lock the rate",
		"completion_requirement": "field_value:loan_status=SUB",
	}, actorHeaders())
	var task TaskResponse
	decodeInto(t, data, &task)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/requirement", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("requirement status %d: %s", res.StatusCode, string(data))
	}
	var reqResp TaskRequirementResponse
	decodeInto(t, data, &reqResp)
	if reqResp.Validation.CanComplete {
		t.Fatalf("validation = %+v", reqResp.Validation)
	}
	if reqResp.Validation.Message != "Loan Status must be SUB before completing this task" {
		t.Fatalf("message = %q", reqResp.Validation.Message)
	}

	// The check is read-only; the task stays open.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID, nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task status %d: %s", res.StatusCode, string(data))
	}
	var detail TaskDetailResponse
	decodeInto(t, data, &detail)
	if detail.Status != "open" {
		t.Fatalf("status = %s", detail.Status)
	}

	// Populating the field flips the verdict.
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/leads/"+lead.ID+"/fields/loan_status", map[string]any{
		"value": "SUB",
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set field status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+task.ID+"/requirement", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("requirement status %d: %s", res.StatusCode, string(data))
	}
	decodeInto(t, data, &reqResp)
	if !reqResp.Validation.CanComplete {
		t.Fatalf("validation = %+v", reqResp.Validation)
	}
}

func TestAutoCompleteOnlyTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":                  "Sync appraisal from vendor",
		"completion_requirement": "auto_complete_only",
	}, actorHeaders())
	var task TaskResponse
	decodeInto(t, data, &task)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/complete", nil, actorHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("manual complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/auto-complete", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("auto-complete status %d: %s", res.StatusCode, string(data))
	}
	var completed TaskResponse
	decodeInto(t, data, &completed)
	if completed.Status != "complete" {
		t.Fatalf("status = %s", completed.Status)
	}
}
