package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Assets serves files under dir with long-lived caching and strong ETags.
type Assets struct {
	dir   string
	etags map[string]string
	files http.Handler
}

// NewAssets precomputes ETags for every file below dir. A missing directory yields a handler
// that answers 404.
func NewAssets(dir string) *Assets {
	a := &Assets{dir: dir, etags: map[string]string{}, files: http.FileServer(http.Dir(dir))}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		et, err := fileETag(path)
		if err != nil {
			return nil
		}
		if rel, err := filepath.Rel(dir, path); err == nil {
			a.etags["/"+filepath.ToSlash(rel)] = et
		}
		return nil
	})
	return a
}

// Has reports whether an asset exists at the URL path relative to the assets root,
// for example "images/ampoule-led.png".
func (a *Assets) Has(rel string) bool {
	_, ok := a.etags["/"+strings.TrimPrefix(rel, "/")]
	return ok
}

// ServeHTTP expects the /assets prefix to have been stripped.
func (a *Assets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Set("Cache-Control", "public, max-age=604800, stale-while-revalidate=86400")
	if et := a.etags[r.URL.Path]; et != "" {
		w.Header().Set("ETag", et)
		if matchesETag(r.Header.Get("If-None-Match"), et) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	a.files.ServeHTTP(w, r)
}

func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func fileETag(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`, nil
}
