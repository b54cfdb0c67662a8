package fileproxy

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// contentTypes is the closed extension map for served files. Anything
// unlisted streams as an opaque octet stream.
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// Handler serves stored files gated by an HMAC signature. It never
// trusts the requested name as a path: only the basename is joined
// under the storage root. Errors are short text/plain codes because the
// endpoint otherwise serves binary content.
type Handler struct {
	root   string
	signer *Signer
	logger *infra.Logger
}

// NewHandler constructs a Handler rooted at the given storage directory.
func NewHandler(root string, signer *Signer, logger *infra.Logger) *Handler {
	if logger == nil {
		discard := zerolog.Nop()
		logger = &discard
	}
	return &Handler{root: root, signer: signer, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(strings.TrimSpace(r.URL.Query().Get("name")))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	sig := r.URL.Query().Get("sig")
	path := filepath.Join(h.root, name)

	if r.URL.Query().Get("health") == "1" {
		h.serveDiagnostics(w, name, sig, path)
		return
	}

	if name == "" || sig == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.signer.Verify(name, sig) {
		// 403 on any signature mismatch; 404 is reserved for a valid
		// signature whose file is gone, so existence never leaks to
		// unsigned callers.
		h.logger.Warn().Str("name", name).Msg("file proxy signature mismatch")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Accept-Ranges", "none")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Debug().Err(err).Str("name", name).Msg("file proxy stream aborted")
	}
}

// serveDiagnostics reports signature validity without serving content.
// It intentionally omits the expected signatures from the payload.
func (h *Handler) serveDiagnostics(w http.ResponseWriter, name, sig, path string) {
	info, statErr := os.Stat(path)
	size := int64(0)
	exists := statErr == nil && !info.IsDir()
	if exists {
		size = info.Size()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":      name,
		"has_sig":   sig != "",
		"sig_valid": name != "" && h.signer.Verify(name, sig),
		"exists":    exists,
		"size":      size,
	})
}
