package handler

import "net/http"

// HandleHealth reports that the process is up. It checks nothing remote.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
