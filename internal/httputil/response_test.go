package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not a JSON error envelope: %v", err)
	}
	return body.Error
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"count": 3})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["count"] != 3 {
		t.Errorf("body = %v", body)
	}
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusTeapot, "short and stout")

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if got := decodeError(t, rec); got != "short and stout" {
		t.Errorf("error = %q", got)
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(*httptest.ResponseRecorder)
		want  int
	}{
		{"method not allowed", func(r *httptest.ResponseRecorder) { MethodNotAllowed(r) }, http.StatusMethodNotAllowed},
		{"bad request", func(r *httptest.ResponseRecorder) { BadRequest(r, "nope") }, http.StatusBadRequest},
		{"not found", func(r *httptest.ResponseRecorder) { NotFound(r, "missing") }, http.StatusNotFound},
		{"internal error", func(r *httptest.ResponseRecorder) { InternalServerError(r, "boom") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if got := decodeError(t, rec); got == "" {
				t.Error("error message is empty")
			}
		})
	}
}
