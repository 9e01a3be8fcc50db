package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetStatus(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result":{"report_id":"r 1","status":"completed","slots_balance":4}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key", time.Second, time.Second)
	result, err := c.GetStatus(context.Background(), "r 1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if gotAuth != "Bearer api-key" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotPath != "/api/submission-status/r%201" {
		t.Fatalf("expected escaped path, got %q", gotPath)
	}
	if result["status"] != "completed" || result["slots_balance"] != float64(4) {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestGetStatusFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			check: func(err error) bool {
				var se *StatusError
				return errors.As(err, &se) && se.StatusCode == http.StatusBadGateway
			},
		},
		{
			name: "missing result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"message":"queued"}`)
			},
			check: func(err error) bool { return errors.Is(err, ErrNoResult) },
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			check: func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(srv.URL, "", 100*time.Millisecond, time.Second)
			_, err := c.GetStatus(context.Background(), "r1")
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestSubmitFilePassthrough(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/submit-file" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, `{"result":{"report_id":"abc","status":"pending"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second, time.Second)
	resp, err := c.SubmitFile(context.Background(), []byte("--b\r\npayload\r\n--b--"), "multipart/form-data; boundary=b")
	if err != nil {
		t.Fatalf("SubmitFile: %v", err)
	}
	if gotType != "multipart/form-data; boundary=b" || !strings.Contains(gotBody, "payload") {
		t.Fatalf("body not forwarded verbatim: %q %q", gotType, gotBody)
	}
	if !resp.Accepted() || resp.ReportID() != "abc" {
		t.Fatalf("expected accepted submission abc, got %+v", resp)
	}
	if resp.Result()["status"] != "pending" {
		t.Fatalf("expected nested result, got %v", resp.Result())
	}
}

func TestSubmitResponseReportID(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{"top level", map[string]interface{}{"report_id": "a"}, "a"},
		{"under data", map[string]interface{}{"data": map[string]interface{}{"report_id": "b"}}, "b"},
		{"numeric", map[string]interface{}{"report_id": float64(42)}, "42"},
		{"absent", map[string]interface{}{"error": "quota"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &SubmitResponse{StatusCode: http.StatusOK, Body: tt.body}
			if got := r.ReportID(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubmitFileTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second, 100*time.Millisecond)
	start := time.Now()
	_, err := c.SubmitFile(context.Background(), []byte("--b\r\npayload\r\n--b--"), "multipart/form-data; boundary=b")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("submit was not cut off by its timeout, took %s", elapsed)
	}
}
