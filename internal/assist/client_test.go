package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClient_AnalyzeImage_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/process-image" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Language != "hi" {
			t.Errorf("expected language hi, got %q", req.Language)
		}
		if !strings.HasPrefix(req.Image, "data:image/") {
			t.Errorf("expected data URI, got %q", req.Image)
		}
		_ = json.NewEncoder(w).Encode(assistResponse{Response: "  Leaf rust detected.  "})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.AnalyzeImage(ctx, "data:image/png;base64,aGk=", "hi")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got != "Leaf rust detected." {
		t.Fatalf("expected trimmed response, got %q", got)
	}
}

func TestClient_Ask_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) }},
		{"empty_response", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"response":""}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewClient(srv.URL)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Ask(ctx, "what should I do?"); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestImageDataURI(t *testing.T) {
	dir := t.TempDir()

	// minimal PNG header so content sniffing sees an image
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)
	path := filepath.Join(dir, "crop.png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatal(err)
	}
	uri, err := ImageDataURI(path)
	if err != nil {
		t.Fatalf("data uri: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %q", uri[:32])
	}

	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello world this is not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImageDataURI(txt); err == nil {
		t.Fatalf("expected error for non-image file")
	}
	if _, err := ImageDataURI(filepath.Join(dir, "missing.png")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
