package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/germanamz/toolplex/pkg/ask"
)

type answerRequest struct {
	Answer string `json:"answer"`
}

// mountApprovals registers the approvals endpoints on routes:
//
//	GET  /approvals       pending confirmation questions
//	POST /approvals/{id}  {"answer": "yes"} answers one of them
func mountApprovals(routes *http.ServeMux, r *ask.Responder, log *slog.Logger) {
	routes.HandleFunc("GET /approvals", func(w http.ResponseWriter, req *http.Request) {
		pending := r.Pending()
		if pending == nil {
			pending = []ask.Question{}
		}
		writeJSON(w, http.StatusOK, pending)
	})

	routes.HandleFunc("POST /approvals/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := req.PathValue("id")

		var body answerRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
			return
		}
		if body.Answer == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "answer is required"})
			return
		}

		if err := r.Respond(id, body.Answer); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}

		log.InfoContext(req.Context(), "approval answered", "id", id, "answer", body.Answer)
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
