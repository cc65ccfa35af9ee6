package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"autoguardian/server/internal/auth"
	"autoguardian/server/internal/config"
	"autoguardian/server/internal/model"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"Bearer  spaced ", "spaced"},
	}
	for _, tc := range cases {
		if got := bearerToken(tc.header); got != tc.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-03-15")
	if err != nil {
		t.Fatalf("parseDate: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.March || got.Day() != 15 {
		t.Errorf("parseDate returned %v", got)
	}

	if _, err := parseDate("15/03/2026"); err == nil {
		t.Error("expected error for non ISO date")
	}
	if _, err := parseDate("2026-03-15T10:00:00Z"); err == nil {
		t.Error("expected error for timestamp input")
	}
}

func TestParseDatePtr(t *testing.T) {
	got, err := parseDatePtr(nil)
	if err != nil || got != nil {
		t.Fatalf("parseDatePtr(nil) = %v, %v", got, err)
	}

	raw := "2025-12-31"
	got, err = parseDatePtr(&raw)
	if err != nil {
		t.Fatalf("parseDatePtr: %v", err)
	}
	if got == nil || formatDate(*got) != raw {
		t.Errorf("parseDatePtr round trip = %v", got)
	}
}

func TestValidateVehicleNumbers(t *testing.T) {
	neg := -1
	pos := 10

	if code := validateVehicleNumbers(nil, nil, nil); code != "" {
		t.Errorf("all nil: got %q", code)
	}
	if code := validateVehicleNumbers(&neg, nil, nil); code != "invalid_mileage" {
		t.Errorf("negative mileage: got %q", code)
	}
	if code := validateVehicleNumbers(&pos, &neg, nil); code != "invalid_service_interval" {
		t.Errorf("negative interval months: got %q", code)
	}
	if code := validateVehicleNumbers(&pos, &pos, &neg); code != "invalid_service_interval" {
		t.Errorf("negative interval km: got %q", code)
	}
	if code := validateVehicleNumbers(&pos, &pos, &pos); code != "" {
		t.Errorf("all positive: got %q", code)
	}
}

func TestIsValidReminderStatus(t *testing.T) {
	for _, status := range []string{model.ReminderStatusPending, model.ReminderStatusSent, model.ReminderStatusDismissed} {
		if !isValidReminderStatus(status) {
			t.Errorf("%q should be valid", status)
		}
	}
	for _, status := range []string{"", "done", "PENDING"} {
		if isValidReminderStatus(status) {
			t.Errorf("%q should be invalid", status)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, 404, "vehicle_not_found")

	if rec.Code != 404 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "vehicle_not_found" {
		t.Errorf("error code = %q", body["error"])
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.c","bogus":true}`))
	var out registerRequest
	if err := decodeJSON(req, &out); err == nil {
		t.Error("expected unknown field error")
	}
}

func TestMapVehicleDefaults(t *testing.T) {
	now := time.Now().UTC()
	read := mapVehicle(model.Vehicle{
		ID:        "v1",
		UserID:    "u1",
		Make:      "Toyota",
		Model:     "Corolla",
		CreatedAt: now,
		UpdatedAt: now,
	})

	if read.Photos == nil || len(read.Photos) != 0 {
		t.Errorf("photos should be an empty slice, got %v", read.Photos)
	}
	if read.FirstRegistrationDate != nil {
		t.Errorf("unset date should stay nil, got %v", *read.FirstRegistrationDate)
	}
	if read.CreatedAt != now.Format(time.RFC3339) {
		t.Errorf("created_at = %q", read.CreatedAt)
	}
}

func TestMapPolicyDefaults(t *testing.T) {
	now := time.Now().UTC()
	read := mapPolicy(model.Policy{
		ID:        "p1",
		UserID:    "u1",
		VehicleID: "v1",
		StartDate: now,
		EndDate:   now.AddDate(1, 0, 0),
		CreatedAt: now,
		UpdatedAt: now,
	})

	if read.Coverage == nil {
		t.Error("coverage should default to an empty map")
	}
	if read.Exclusions == nil || read.Documents == nil || read.PremiumInstallments == nil {
		t.Error("list fields should default to empty slices")
	}
	if read.StartDate != formatDate(now) {
		t.Errorf("start_date = %q", read.StartDate)
	}
}

func TestParseUUID(t *testing.T) {
	id := uuid.NewString()
	got, err := parseUUID(id)
	if err != nil || got != id {
		t.Errorf("parseUUID(%q) = %q, %v", id, got, err)
	}
	for _, bad := range []string{"", "not-a-uuid", "1234", "g2345678-1234-1234-1234-123456789012"} {
		if _, err := parseUUID(bad); err == nil {
			t.Errorf("parseUUID(%q) should fail", bad)
		}
	}
}

// Malformed ids must be rejected as validation errors before the store is
// consulted. The server here has no store at all, so any request that slips
// past validation panics instead of returning the asserted 400.
func TestMalformedIDsRejected(t *testing.T) {
	cfg := config.Config{JWTSecret: "unit-secret", JWTIssuer: "unit", AccessTokenTTL: time.Minute}
	srv := NewServer(cfg, nil, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	token, err := auth.NewAccessToken(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, auth.Claims{
		UserID: uuid.NewString(),
		Email:  "unit@example.com",
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	goodID := uuid.NewString()
	cases := []struct {
		method string
		path   string
		body   string
		code   string
	}{
		{"GET", "/api/v1/vehicles/not-a-uuid", "", "invalid_vehicle_id"},
		{"PUT", "/api/v1/vehicles/not-a-uuid", `{}`, "invalid_vehicle_id"},
		{"DELETE", "/api/v1/vehicles/not-a-uuid", "", "invalid_vehicle_id"},
		{"GET", "/api/v1/policies/12345", "", "invalid_policy_id"},
		{"PUT", "/api/v1/policies/12345", `{}`, "invalid_policy_id"},
		{"DELETE", "/api/v1/policies/12345", "", "invalid_policy_id"},
		{"GET", "/api/v1/events/xyz", "", "invalid_event_id"},
		{"PUT", "/api/v1/events/xyz", `{}`, "invalid_event_id"},
		{"DELETE", "/api/v1/events/xyz", "", "invalid_event_id"},
		{"PUT", "/api/v1/reminders/nope", `{}`, "invalid_reminder_id"},
		{"DELETE", "/api/v1/reminders/nope", "", "invalid_reminder_id"},
		{"GET", "/api/v1/offers/nope", "", "invalid_offer_id"},
		{"GET", "/api/v1/offers/?vehicle_id=nope", "", "invalid_vehicle_id"},
		{"GET", "/api/v1/policies/?vehicle_id=nope", "", "invalid_vehicle_id"},
		{"GET", "/api/v1/events/?vehicle_id=nope", "", "invalid_vehicle_id"},
		{"POST", "/api/v1/offers/quote", `{"vehicle_id":"nope"}`, "invalid_vehicle_id"},
		{"POST", "/api/v1/offers/quote", `{"vehicle_id":"` + goodID + `","policy_id":"nope"}`, "invalid_policy_id"},
		{"POST", "/api/v1/policies/", `{"vehicle_id":"nope","policy_type":"OC","insurer":"X","policy_number":"1","start_date":"2026-01-01","end_date":"2027-01-01","premium_total":100}`, "invalid_vehicle_id"},
		{"POST", "/api/v1/events/", `{"vehicle_id":"nope","type":"service","date":"2026-01-01"}`, "invalid_vehicle_id"},
		{"POST", "/api/v1/reminders/", `{"entity_type":"policy","entity_id":"nope","due_date":"2026-01-01"}`, "invalid_entity_id"},
		{"POST", "/api/v1/reminders/", `{"entity_type":"policy","entity_id":"` + goodID + `","policy_id":"nope","due_date":"2026-01-01"}`, "invalid_policy_id"},
	}

	for _, tc := range cases {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		req, err := http.NewRequest(tc.method, ts.URL+tc.path, body)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if tc.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		var payload map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("%s %s: decode: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %s: status %d, want 400", tc.method, tc.path, resp.StatusCode)
		}
		if payload["error"] != tc.code {
			t.Errorf("%s %s: error %q, want %q", tc.method, tc.path, payload["error"], tc.code)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 172.16.0.1")
	if got := clientIP(req); got != "10.1.2.3" {
		t.Errorf("forwarded ip = %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "10.9.8.7")
	if got := clientIP(req); got != "10.9.8.7" {
		t.Errorf("real ip = %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	if got := clientIP(req); got != "" {
		t.Errorf("no headers should yield empty, got %q", got)
	}
}
