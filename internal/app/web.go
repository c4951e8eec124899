package app

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"

	"github.com/relabs-tech/spectrometer_viewer/internal/capture"
	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

// NewWebHandler builds the viewer's HTTP surface: the websocket shell, a
// small JSON API and the static page from webRoot. Browser requests that
// change state must come from the viewer's own origin.
func NewWebHandler(ctrl Controller, hub *Hub, webRoot string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", hub.ServeWS)

	// JSON API endpoint: latest averaged spectrum
	mux.HandleFunc("GET /api/spectrum", func(w http.ResponseWriter, r *http.Request) {
		latest := ctrl.Latest()
		if latest == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, latest)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		res, err := ctrl.Do(r.Context(), capture.Command{Action: capture.ActionStatus})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	// Same actions as the websocket, for scripting with curl
	mux.HandleFunc("POST /api/command", func(w http.ResponseWriter, r *http.Request) {
		var cmd capture.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, "invalid command: "+err.Error(), http.StatusBadRequest)
			return
		}
		res, err := ctrl.Do(r.Context(), cmd)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, WSResponse{Type: "error", Result: &res, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, WSResponse{Type: "result", Result: &res})
	})

	// CSV download of the latest spectrum; the session status is untouched
	mux.HandleFunc("GET /api/export.csv", func(w http.ResponseWriter, r *http.Request) {
		latest := ctrl.Latest()
		if latest.Empty() {
			http.Error(w, "no data to export", http.StatusServiceUnavailable)
			return
		}

		var buf bytes.Buffer
		if err := spectrum.WriteCSV(&buf, latest); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="spectrum.csv"`)
		w.Write(buf.Bytes())
	})

	// Static files from webRoot as the root
	mux.Handle("/", http.FileServer(http.Dir(webRoot)))

	return http.NewCrossOriginProtection().Handler(mux)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}
