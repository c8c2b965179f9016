package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/crowd-labeling-api/internal/api"
	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/mocks"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type testServer struct {
	router  *gin.Engine
	store   *mocks.Store
	imports *mocks.MockImportService
	exports *mocks.MockExportService
}

func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080", AllowedOrigins: "*"},
		Auth: config.AuthConfig{
			JWTSecret: "api-test-secret",
			Issuer:    "crowd-labeling-test",
			TokenTTL:  time.Hour,
		},
		Sampling: config.SamplingConfig{DefaultSize: 2, DefaultGoldSize: 1},
		Import: config.ImportConfig{
			BatchSize:     100,
			MaxUploadSize: 1024 * 1024,
		},
	}

	store := mocks.NewStore()
	services := service.NewServices(store.Repos(), cfg, zerolog.Nop())

	mockImport := mocks.NewMockImportService()
	mockExport := mocks.NewMockExportService()
	services.Import = mockImport
	services.Export = mockExport

	return &testServer{
		router:  api.NewRouter(services, cfg, zerolog.Nop()),
		store:   store,
		imports: mockImport,
		exports: mockExport,
	}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, clientID string) string {
	t.Helper()
	w := s.do("POST", "/v1/users/login", "", map[string]string{"client_id": clientID})
	if w.Code != http.StatusOK {
		t.Fatalf("login %q: expected 200, got %d: %s", clientID, w.Code, w.Body.String())
	}
	var resp struct {
		UserToken string `json:"user_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.UserToken == "" {
		t.Fatalf("login %q: no token in %s", clientID, w.Body.String())
	}
	return resp.UserToken
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	s.store.AddUser("admin", models.ClientTypeAdmin)
	return s.login(t, "admin")
}

func answerBody(locationID int64, landUsage, expansion int) map[string]interface{} {
	return map[string]interface{}{
		"location_id":     locationID,
		"source_url_root": "https://tiles.example.org/",
		"land_usage":      landUsage,
		"expansion":       expansion,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do("GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	decode(t, w, &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "crowd-labeling-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request ID header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestRouter(t)
	s.do("GET", "/health", "", nil)

	w := s.do("GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Error("Expected http_requests_total in metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do("OPTIONS", "/v1/answers", "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestLogin(t *testing.T) {
	s := setupTestRouter(t)
	s.store.AddUser("banned", models.ClientTypeBanned)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"new client", map[string]string{"client_id": "client-1"}, http.StatusOK},
		{"empty client id", map[string]string{"client_id": ""}, http.StatusBadRequest},
		{"invalid JSON", "{not json", http.StatusBadRequest},
		{"banned client", map[string]string{"client_id": "banned"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do("POST", "/v1/users/login", "", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	s := setupTestRouter(t)
	token := s.login(t, "client")

	tests := []struct {
		name       string
		setup      func(req *http.Request)
		wantStatus int
	}{
		{"no token", func(req *http.Request) {}, http.StatusUnauthorized},
		{"bearer token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"query token", func(req *http.Request) {
			q := req.URL.Query()
			q.Set("user_token", token)
			req.URL.RawQuery = q.Encode()
		}, http.StatusOK},
		{"wrong scheme", func(req *http.Request) { req.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
		{"garbage token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer garbage") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/status", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := setupTestRouter(t)
	userToken := s.login(t, "client")
	adminToken := s.adminToken(t)

	if w := s.do("GET", "/v1/admin/users", userToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for normal user, got %d", w.Code)
	}

	w := s.do("GET", "/v1/admin/users", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for admin, got %d", w.Code)
	}
	var resp struct {
		Data []models.User `json:"data"`
	}
	decode(t, w, &resp)
	if len(resp.Data) != 2 {
		t.Errorf("Expected 2 users, got %d", len(resp.Data))
	}
}

func TestLabelingFlow(t *testing.T) {
	s := setupTestRouter(t)
	admin := s.adminToken(t)

	ids := make(map[string]int64)
	for _, f := range []string{"G", "L1", "L2"} {
		w := s.do("POST", "/v1/admin/locations", admin, map[string]string{"factory_id": f})
		if w.Code != http.StatusCreated {
			t.Fatalf("create location %s: expected 201, got %d: %s", f, w.Code, w.Body.String())
		}
		var loc models.Location
		decode(t, w, &loc)
		ids[f] = loc.ID
	}

	w := s.do("POST", "/v1/admin/gold-standards", admin, answerBody(ids["G"], 1, 2))
	if w.Code != http.StatusCreated {
		t.Fatalf("create gold standard: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	token := s.login(t, "labeler")

	w = s.do("GET", "/v1/locations?size=3&gold_standard_size=1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sample: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sample struct {
		Data []models.Location `json:"data"`
	}
	decode(t, w, &sample)
	if len(sample.Data) != 3 {
		t.Fatalf("Expected 3 locations, got %d", len(sample.Data))
	}

	// Defaults come from configuration
	w = s.do("GET", "/v1/locations", token, nil)
	decode(t, w, &sample)
	if w.Code != http.StatusOK || len(sample.Data) != 2 {
		t.Fatalf("Expected 2 default locations, got %d (%d)", len(sample.Data), w.Code)
	}

	w = s.do("POST", "/v1/answers", token, map[string]interface{}{
		"data": []interface{}{answerBody(ids["G"], 1, 2), answerBody(ids["L1"], 2, 2)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var submit struct {
		Passed bool `json:"passed"`
	}
	decode(t, w, &submit)
	if !submit.Passed {
		t.Error("Expected batch to pass")
	}

	w = s.do("GET", "/v1/status", token, nil)
	var status models.Status
	decode(t, w, &status)
	if status.IndividualDoneCount != 2 {
		t.Errorf("Expected individual_done_count 2, got %d", status.IndividualDoneCount)
	}
	if status.UserCount != 2 {
		t.Errorf("Expected user_count 2, got %d", status.UserCount)
	}
}

func TestErrorMapping(t *testing.T) {
	s := setupTestRouter(t)
	admin := s.adminToken(t)
	g := s.store.AddLocation("G")
	l := s.store.AddLocation("L")

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"sample without gold", "GET", "/v1/locations?size=2&gold_standard_size=1", nil, http.StatusBadRequest},
		{"sample size not a number", "GET", "/v1/locations?size=abc", nil, http.StatusBadRequest},
		{"sample gold exceeds size", "GET", "/v1/locations?size=1&gold_standard_size=2", nil, http.StatusBadRequest},
		{"create gold", "POST", "/v1/admin/gold-standards", answerBody(g.ID, 1, 1), http.StatusCreated},
		{"duplicate gold", "POST", "/v1/admin/gold-standards", answerBody(g.ID, 0, 0), http.StatusConflict},
		{"gold for unknown location", "POST", "/v1/admin/gold-standards", answerBody(9999, 0, 0), http.StatusNotFound},
		{"single answer batch", "POST", "/v1/answers", map[string]interface{}{
			"data": []interface{}{answerBody(g.ID, 1, 1)},
		}, http.StatusBadRequest},
		{"batch without gold check", "POST", "/v1/answers", map[string]interface{}{
			"data": []interface{}{answerBody(l.ID, 1, 1), answerBody(l.ID, 1, 1)},
		}, http.StatusBadRequest},
		{"batch with unknown location", "POST", "/v1/answers", map[string]interface{}{
			"data": []interface{}{answerBody(g.ID, 1, 1), answerBody(9999, 1, 1)},
		}, http.StatusNotFound},
		{"set done without body field", "PATCH", "/v1/admin/locations/1/done", map[string]interface{}{}, http.StatusBadRequest},
		{"set done bad id", "PATCH", "/v1/admin/locations/abc/done", map[string]bool{"is_done": true}, http.StatusBadRequest},
		{"set done unknown location", "PATCH", "/v1/admin/locations/9999/done", map[string]bool{"is_done": true}, http.StatusNotFound},
		{"invalid client type", "PATCH", "/v1/admin/users/1/client_type", map[string]int{"client_type": 7}, http.StatusBadRequest},
		{"invalid status", "PATCH", "/v1/admin/answers/1/gold_standard_status", map[string]int{"gold_standard_status": 9}, http.StatusBadRequest},
		{"delete unknown answer", "DELETE", "/v1/admin/answers/9999", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, admin, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestValidationErrorDetails(t *testing.T) {
	s := setupTestRouter(t)
	token := s.login(t, "client")

	w := s.do("POST", "/v1/answers", token, map[string]interface{}{
		"data": []interface{}{
			map[string]interface{}{"location_id": 1, "land_usage": 1, "expansion": 1},
			map[string]interface{}{"source_url_root": "", "land_usage": 1, "expansion": 1},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	var resp struct {
		Details []validation.ValidationError `json:"details"`
	}
	decode(t, w, &resp)

	fields := make(map[string]bool)
	for _, d := range resp.Details {
		fields[d.Field] = true
	}
	for _, want := range []string{"data[0].source_url_root", "data[1].location_id"} {
		if !fields[want] {
			t.Errorf("Expected error for %s, got %v", want, resp.Details)
		}
	}
}

func TestAdminLocationAndAnswerManagement(t *testing.T) {
	s := setupTestRouter(t)
	admin := s.adminToken(t)
	l := s.store.AddLocation("L")
	u := s.store.AddUser("u", models.ClientTypeNormal)

	w := s.do("PATCH", "/v1/admin/locations/"+itoa(l.ID)+"/done", admin, map[string]bool{"is_done": true})
	if w.Code != http.StatusOK {
		t.Fatalf("set done: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var loc models.Location
	decode(t, w, &loc)
	if loc.DoneAt == nil {
		t.Error("Expected done_at to be set")
	}

	w = s.do("PATCH", "/v1/admin/users/"+itoa(u.ID)+"/client_type", admin, map[string]int{"client_type": -1})
	if w.Code != http.StatusOK {
		t.Fatalf("set client type: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	gold := s.store.AddGoldStandard(1, l.ID, models.LandUsageFarm, models.ExpansionYes)
	w = s.do("PATCH", "/v1/admin/answers/"+itoa(gold.ID)+"/gold_standard_status", admin, map[string]int{"gold_standard_status": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("set status: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if w := s.do("DELETE", "/v1/admin/answers/"+itoa(gold.ID), admin, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete answer: expected 204, got %d", w.Code)
	}
	if w := s.do("DELETE", "/v1/admin/locations/"+itoa(l.ID), admin, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete location: expected 204, got %d", w.Code)
	}
	if s.store.Location(l.ID) != nil {
		t.Error("Expected location to be deleted")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func multipartUpload(t *testing.T, path, token, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestImportEndpoint(t *testing.T) {
	s := setupTestRouter(t)
	admin := s.adminToken(t)

	tests := []struct {
		name       string
		path       string
		filename   string
		wantStatus int
	}{
		{"locations", "/v1/admin/imports?resource=locations", "locations.csv", http.StatusOK},
		{"gold standards", "/v1/admin/imports?resource=gold_standards", "gold.csv", http.StatusOK},
		{"missing resource", "/v1/admin/imports", "locations.csv", http.StatusBadRequest},
		{"invalid resource", "/v1/admin/imports?resource=users", "users.csv", http.StatusBadRequest},
		{"missing file", "/v1/admin/imports?resource=locations", "", http.StatusBadRequest},
		{"not a CSV", "/v1/admin/imports?resource=locations", "locations.json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartUpload(t, tt.path, admin, tt.filename, "factory_id\nF1\n")
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	if got := string(s.imports.Uploads[models.ImportLocations]); got != "factory_id\nF1\n" {
		t.Errorf("Expected uploaded file to reach the import service, got %q", got)
	}
	if len(s.imports.Admins) != 1 || s.imports.Admins[0] != "admin" {
		t.Errorf("Expected gold import to run as admin, got %v", s.imports.Admins)
	}
}

func TestImportEndpoint_ServiceErrors(t *testing.T) {
	s := setupTestRouter(t)
	admin := s.adminToken(t)

	s.imports.ImportLocationsFunc = func(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
		return nil, validation.Errors{{Field: "factory_id", Message: "missing column factory_id"}}
	}

	req := multipartUpload(t, "/v1/admin/imports?resource=locations", admin, "locations.csv", "id\n1\n")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	s := setupTestRouter(t)
	admin := s.adminToken(t)

	var gotFormat string
	s.exports.StreamAnswersFunc = func(ctx context.Context, w io.Writer, format string) error {
		gotFormat = format
		_, err := io.WriteString(w, "user_id,client_id\n1,admin\n")
		return err
	}

	w := s.do("GET", "/v1/admin/exports?resource=answers", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotFormat != service.FormatCSV {
		t.Errorf("Expected csv default format, got %q", gotFormat)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=answers_") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}
	if !strings.Contains(w.Body.String(), "1,admin") {
		t.Errorf("Expected streamed body, got %q", w.Body.String())
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing resource", "/v1/admin/exports"},
		{"invalid resource", "/v1/admin/exports?resource=users"},
		{"invalid format", "/v1/admin/exports?resource=locations&format=xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do("GET", tt.path, admin, nil); w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}
