package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	tests := []struct {
		name  string
		token string
		repo  string
		want  bool
	}{
		{"fully configured", "tok", "owner/repo", true},
		{"missing token", "", "owner/repo", false},
		{"missing repo", "tok", "", false},
		{"malformed repo", "tok", "just-a-name", false},
		{"nested path", "tok", "a/b/c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.token, tt.repo)
			if got := c.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/issues" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}

		var req createIssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Title != "Need help" {
			t.Errorf("title = %q", req.Title)
		}
		if len(req.Labels) != 2 {
			t.Errorf("labels = %v", req.Labels)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Issue{Number: 42, URL: "https://github.com/owner/repo/issues/42", Title: req.Title})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("tok", "owner/repo", srv.URL)
	issue, err := c.CreateIssue(context.Background(), "Need help", "details", []string{"customer-support", "priority-high"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if issue.Number != 42 {
		t.Errorf("number = %d, want 42", issue.Number)
	}
}

func TestCreateIssue_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("tok", "owner/repo", srv.URL)
	if _, err := c.CreateIssue(context.Background(), "t", "b", nil); err == nil {
		t.Fatal("CreateIssue succeeded, want error")
	}
}

func TestCreateIssue_Unconfigured(t *testing.T) {
	c := NewClient("", "")
	if _, err := c.CreateIssue(context.Background(), "t", "b", nil); err == nil {
		t.Fatal("CreateIssue succeeded on unconfigured client, want error")
	}
}
