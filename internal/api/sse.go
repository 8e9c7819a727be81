package api

import (
	"fmt"
	"net/http"
	"time"
)

// sseKeepAlive is how often a comment line is sent on idle streams.
const sseKeepAlive = 30 * time.Second

// handleSSE streams portal change notifications.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorJSON(w, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", s.config.ParsedFrontendURL.String())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, messages := s.broker.AddClient(p.MemberID)
	defer s.broker.RemoveClient(id)

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case message, open := <-messages:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
