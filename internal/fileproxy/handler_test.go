package fileproxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func newTestHandler(t *testing.T) (*Handler, *Signer, string) {
	t.Helper()
	signer, err := NewSigner("test-proxy-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	root := t.TempDir()
	return NewHandler(root, signer, nil), signer, root
}

func get(t *testing.T, h *Handler, name, sig string, extra string) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if sig != "" {
		q.Set("sig", sig)
	}
	target := "/v1/files?" + q.Encode() + extra
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServeValidSignatures(t *testing.T) {
	h, signer, root := newTestHandler(t)
	content := []byte("<svg xmlns=\"http://www.w3.org/2000/svg\"/>")
	if err := os.WriteFile(filepath.Join(root, "out.svg"), content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	for _, tc := range []struct {
		name string
		sig  string
	}{
		{"hex", signer.SignHex("out.svg")},
		{"base64url", signer.SignBase64("out.svg")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(t, h, "out.svg", tc.sig, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			if got := rr.Header().Get("Content-Type"); got != "image/svg+xml" {
				t.Fatalf("content type = %q", got)
			}
			if got := rr.Header().Get("Cache-Control"); got != "no-store, no-cache, must-revalidate" {
				t.Fatalf("cache control = %q", got)
			}
			if got := rr.Header().Get("X-Accel-Buffering"); got != "no" {
				t.Fatalf("buffering header = %q", got)
			}
			if rr.Body.String() != string(content) {
				t.Fatalf("body mismatch")
			}
		})
	}
}

func TestServeMutatedSignatureForbidden(t *testing.T) {
	h, signer, root := newTestHandler(t)
	if err := os.WriteFile(filepath.Join(root, "out.svg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	sig := signer.SignHex("out.svg")

	// Flip one nibble at every position; each mutation must be rejected.
	for i := 0; i < len(sig); i++ {
		mutated := []byte(sig)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		if string(mutated) == sig {
			continue
		}
		rr := get(t, h, "out.svg", string(mutated), "")
		if rr.Code != http.StatusForbidden {
			t.Fatalf("mutation at %d: status = %d, want 403", i, rr.Code)
		}
	}
}

func TestServeSignatureForWrongName(t *testing.T) {
	h, signer, _ := newTestHandler(t)
	rr := get(t, h, "other.svg", signer.SignHex("out.svg"), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestServeValidSignatureMissingFile(t *testing.T) {
	h, signer, _ := newTestHandler(t)
	rr := get(t, h, "gone.svg", signer.SignHex("gone.svg"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestServeMissingParams(t *testing.T) {
	h, signer, _ := newTestHandler(t)
	if rr := get(t, h, "", signer.SignHex("a"), ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing name: status = %d", rr.Code)
	}
	if rr := get(t, h, "a.png", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing sig: status = %d", rr.Code)
	}
}

func TestServeTraversalStaysInRoot(t *testing.T) {
	h, signer, root := newTestHandler(t)
	secret := []byte("top secret")
	outside := filepath.Join(filepath.Dir(root), "secret.txt")
	if err := os.WriteFile(outside, secret, 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	defer os.Remove(outside)

	for _, name := range []string{
		"../secret.txt",
		"..%2Fsecret.txt",
		"foo/../../secret.txt",
	} {
		decoded, _ := url.QueryUnescape(name)
		// Sign the exact value the handler will resolve so a traversal
		// would pass the signature check if the path were trusted.
		sig := signer.SignHex(filepath.Base(decoded))
		req := httptest.NewRequest(http.MethodGet, "/v1/files?name="+url.QueryEscape(decoded)+"&sig="+sig, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Body.String() == string(secret) {
			t.Fatalf("traversal %q escaped the storage root", name)
		}
	}
}

func TestServeDiagnosticsMode(t *testing.T) {
	h, signer, root := newTestHandler(t)
	if err := os.WriteFile(filepath.Join(root, "in.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	rr := get(t, h, "in.png", signer.SignBase64("in.png"), "&health=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var diag struct {
		Name     string `json:"name"`
		HasSig   bool   `json:"has_sig"`
		SigValid bool   `json:"sig_valid"`
		Exists   bool   `json:"exists"`
		Size     int64  `json:"size"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&diag); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if !diag.SigValid || !diag.Exists || diag.Size != 3 {
		t.Fatalf("diagnostics = %+v", diag)
	}
}

func TestContentTypeFallback(t *testing.T) {
	h, signer, root := newTestHandler(t)
	if err := os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00}, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	rr := get(t, h, "blob.bin", signer.SignHex("blob.bin"), "")
	if got := rr.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("content type = %q", got)
	}
}
