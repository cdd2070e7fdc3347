package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleJobWS streams progress events for one job until it finishes or
// the client goes away. The connection always starts with a snapshot of
// the current state, so late subscribers see where the job stands.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, events, unsubscribe, err := s.manager.Subscribe(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("job_id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	snap := job.snapshot()
	initial := ProgressEvent{JobID: snap.ID, Phase: "subscribed", Done: snap.Done, Total: snap.Total, Status: snap.Status}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}
	if snap.Status != StatusRunning {
		return
	}

	// Reads only surface client disconnects; no inbound messages are
	// expected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Phase == "finished" {
				return
			}
		case <-done:
			return
		}
	}
}
