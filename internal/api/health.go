package api

import (
	"net/http"

	"github.com/starford/inkwell/internal/blogservice"
)

// Live always answers ok.
func Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready answers 503 until the active profile is complete.
func Ready(blogs *blogservice.Holder) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := blogs.Current().Profile().Check(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unconfigured", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
