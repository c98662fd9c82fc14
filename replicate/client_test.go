package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeAPI serves the prediction lifecycle: create returns a processing
// prediction, the first poll reports success, and the image endpoint serves
// png bytes.
func fakeAPI(t *testing.T, imageBody string) (*httptest.Server, *int) {
	t.Helper()
	polls := 0
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/v1/models/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			http.Error(w, "bad auth "+got, http.StatusUnauthorized)
			return
		}
		var payload struct {
			Input PredictionInput `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Input.Prompt == "" {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-1", "status": "processing"})
	})
	mux.HandleFunc("/v1/predictions/pred-1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-1",
			"status": "succeeded",
			"output": []string{srv.URL + "/image.png"},
		})
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, imageBody)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func testClient(srv *httptest.Server) *Client {
	c := NewClient("test-token")
	c.BaseURL = srv.URL
	c.Delay = 0
	c.PollInterval = time.Millisecond
	c.HTTPClient = srv.Client()
	return c
}

func TestGenerate(t *testing.T) {
	srv, polls := fakeAPI(t, "png-bytes")
	c := testClient(srv)

	data, err := c.Generate(context.Background(), FluoroscopyPrompt("T1 vertebra", "M", 61))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected image payload %q", data)
	}
	if *polls == 0 {
		t.Fatalf("expected the client to poll the processing prediction")
	}
}

func TestGenerateRequiresToken(t *testing.T) {
	c := NewClient("")
	if _, err := c.Generate(context.Background(), "prompt"); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestGenerateReportsFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "pred-9", "status": "failed", "error": "NSFW content detected",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv)
	_, err := c.Generate(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "NSFW") {
		t.Fatalf("expected failure status with API error message, got %v", err)
	}
}

func TestOutputURL(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`"https://x/img.png"`, "https://x/img.png", true},
		{`["https://x/a.png","https://x/b.png"]`, "https://x/a.png", true},
		{`null`, "", false},
		{`{}`, "", false},
		{``, "", false},
	}
	for _, tc := range cases {
		got, err := outputURL(json.RawMessage(tc.raw))
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("outputURL(%s) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("outputURL(%s) should fail", tc.raw)
		}
	}
}

func TestFetchAllSkipsExisting(t *testing.T) {
	srv, _ := fakeAPI(t, "fresh")
	c := testClient(srv)

	dir := t.TempDir()
	existing := filepath.Join(dir, "1", "case-1.png")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(existing, []byte("already-there"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	requests := []FetchRequest{
		{Path: existing, Prompt: "p1"},
		{Path: filepath.Join(dir, "2", "case-2.png"), Prompt: "p2"},
	}
	written, err := c.FetchAll(context.Background(), requests)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected 1 new image, got %d", written)
	}

	data, err := os.ReadFile(existing)
	if err != nil || string(data) != "already-there" {
		t.Fatalf("existing file was overwritten: %q, %v", data, err)
	}
	data, err = os.ReadFile(requests[1].Path)
	if err != nil || string(data) != "fresh" {
		t.Fatalf("new file not written: %q, %v", data, err)
	}
}

func TestFluoroscopyPrompt(t *testing.T) {
	p := FluoroscopyPrompt("Pelvis", "F", 58)
	for _, want := range []string{"fluoroscopy", "Pelvis", "F patient", "age 58"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt %q missing %q", p, want)
		}
	}
}
