package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type createReq struct {
	Name  string `json:"name" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0,lte=10"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"valid", `{"name":"a","limit":3}`, ""},
		{"empty body", ``, "Request body required"},
		{"malformed", `{"name":`, "Invalid request body"},
		{"missing required", `{"limit":1}`, "name is required"},
		{"over max", `{"name":"a","limit":11}`, "limit must be at most 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst createReq
			err := Decode(r, &dst)
			if tt.wantDetail == "" {
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				return
			}
			var he *Error
			if !errors.As(err, &he) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if he.Status != http.StatusBadRequest || he.Detail != tt.wantDetail {
				t.Errorf("got %d %q, want 400 %q", he.Status, he.Detail, tt.wantDetail)
			}
		})
	}
}

func TestWriteErr(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, fmt.Errorf("wrapped: %w", NewError(http.StatusConflict, "Chat is finalized")))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["detail"] != "Chat is finalized" {
		t.Errorf("body = %v", body)
	}

	rec = httptest.NewRecorder()
	WriteErr(rec, errors.New("pq: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatal(err)
	}
	if sse.Started() {
		t.Fatal("started before first event")
	}
	if err := sse.Event("token", map[string]string{"text": "Hi"}); err != nil {
		t.Fatal(err)
	}
	if err := sse.Event("done", map[string]any{"message_id": "m1"}); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
	want := "event: token\ndata: {\"text\":\"Hi\"}\n\nevent: done\ndata: {\"message_id\":\"m1\"}\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
	if !rec.Flushed {
		t.Error("expected flush")
	}
}
