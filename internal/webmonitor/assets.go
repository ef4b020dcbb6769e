package webmonitor

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// assetHandler serves files from assetsDir, falling back to the built-in
// stylesheet for dashboard.css.
type assetHandler struct {
	assetsDir string
	started   time.Time
}

func newAssetHandler(assetsDir string) *assetHandler {
	return &assetHandler{
		assetsDir: assetsDir,
		started:   time.Now(),
	}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.URL.Path)
	if h.assetsDir != "" {
		assetPath := filepath.Join(h.assetsDir, filename)
		if fileExists(assetPath) {
			http.ServeFile(w, r, assetPath)
			return
		}
	}

	if filename == "dashboard.css" {
		http.ServeContent(w, r, filename, h.started, bytes.NewReader([]byte(dashboardCSS)))
		return
	}
	http.NotFound(w, r)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

const dashboardCSS = `
body { margin: 0; font-family: sans-serif; background: #101418; color: #e6e6e6; }
.app { max-width: 1280px; margin: 0 auto; padding: 16px; }
.header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
.title { font-size: 22px; font-weight: bold; }
.badge { padding: 4px 10px; border-radius: 12px; background: #2d3640; }
.grid { display: grid; grid-template-columns: 2fr 1fr; gap: 12px; }
.panel { background: #1a2027; border-radius: 8px; padding: 12px; }
.panel.feed { grid-row: span 3; }
.panel.wide { grid-column: span 2; }
.controls { display: flex; gap: 12px; align-items: center; margin-bottom: 8px; }
#stream { width: 100%; background: #000; }
.warning { background: #5c4a00; padding: 6px 10px; border-radius: 4px; margin-bottom: 8px; }
.alert { padding: 8px; border-radius: 4px; background: #1f3a2a; }
.alert-on { background: #5c1a1a; }
.online { color: #5fd38d; }
.offline { color: #d35f5f; }
pre { max-height: 320px; overflow: auto; background: #0b0e11; padding: 8px; }
.footer-note { font-size: 12px; color: #9aa4ad; }
`
