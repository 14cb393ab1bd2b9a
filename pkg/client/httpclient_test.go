package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_PostJSON(t *testing.T) {
	var gotKey, gotContentType string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0).WithHeader("X-Api-Key", "secret")
	resp, err := c.PostJSON(context.Background(), "/send", map[string]string{"to": "a@b.c"})
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if !resp.IsSuccess() {
		t.Errorf("expected success, got %d", resp.StatusCode)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody["to"] != "a@b.c" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message wins", `{"message":"bad recipient","error":"x"}`, "bad recipient"},
		{"error field", `{"error":"quota exceeded"}`, "quota exceeded"},
		{"code only", `{"code":"E42"}`, "E42"},
		{"not json", `oops`, "status 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{StatusCode: http.StatusBadRequest, Body: []byte(tt.body)}
			if got := ErrorMessage(resp); got != tt.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPClient_WithBearer(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	for _, token := range []string{"tok", ""} {
		resp, err := NewHTTPClient(srv.URL+"/", 0).WithBearer(token).PostJSON(context.Background(), "/send", struct{}{})
		if err != nil {
			t.Fatalf("PostJSON() error = %v", err)
		}
		if resp.IsSuccess() {
			t.Errorf("500 reported as success")
		}
	}
	if gotAuth[0] != "Bearer tok" || gotAuth[1] != "" {
		t.Errorf("Authorization headers = %q", gotAuth)
	}
}
