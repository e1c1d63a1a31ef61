package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-watch/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 64 << 10,
	// Camera clients live on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebsocket serves one camera client. Frames are processed sequentially
// per connection; the client waits for each answer before sending the next
// frame.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("camera client connected from %s", r.RemoteAddr)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("camera client error: %v", err)
			}
			return
		}

		resp := s.handleFrame(r, data)
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("failed to send response: %v", err)
			return
		}
	}
}

// handleFrame validates and resolves one frame message. Every outcome is a
// Response; the connection stays usable after a bad frame.
func (s *Server) handleFrame(r *http.Request, data []byte) protocol.Response {
	var msg protocol.FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return protocol.ErrorResponse("Invalid JSON format")
	}
	if err := msg.Validate(); err != nil {
		log.Printf("rejected frame from %s: %v", r.RemoteAddr, err)
		return protocol.ErrorResponse(protocol.ErrInvalidFormat)
	}

	result, err := s.recognize(r.Context(), msg.Image)
	if err != nil {
		log.Printf("recognition failed for frame %s: %v", msg.FrameID, err)
		return protocol.ErrorResponse(err.Error())
	}

	s.recordSightings(r.Context(), msg.ObserverID, result)
	if s.results != nil {
		if err := s.results.Record(&msg, result); err != nil {
			log.Printf("failed to log result for frame %s: %v", msg.FrameID, err)
		}
	}

	return protocol.FromResult(result)
}
