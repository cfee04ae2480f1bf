package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleMediaWS accepts an Exotel media stream and runs a call session on it
// until the call ends.
func (r *Router) handleMediaWS(w http.ResponseWriter, req *http.Request) {
	if !r.calls.Add() {
		r.logger.Printf("media_ws: rejecting stream, server is draining")
		http.Error(w, "server is draining", http.StatusServiceUnavailable)
		return
	}
	defer r.calls.Done()

	if r.runSession == nil {
		r.logger.Printf("media_ws: no session runner configured")
		captureError(req, errors.New("media_ws: no session runner"), "media_ws: configuration error")
		http.Error(w, "voice bot not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("media_ws: upgrade failed: %v", err)
		return
	}
	r.logger.Printf("media_ws: connection accepted (%d active)", r.calls.ActiveCount())

	if err := r.runSession(req.Context(), conn); err != nil {
		r.logger.Printf("media_ws: session error: %v", err)
		captureError(req, err, "media_ws: session error")
		// The session normally closes the socket; make sure it is gone.
		_ = conn.Close()
	}
}
