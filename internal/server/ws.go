package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"

	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
)

// wsToken extracts the upgrade's auth token from either the "token" query
// parameter or an "Authorization: Bearer <token>" header (spec §4.6 "query
// parameter or header"), preferring the query parameter when both are set.
func wsToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// wsPeer adapts a coder/websocket connection to the jobs.Peer interface, so
// internal/jobs never imports a transport package directly.
type wsPeer struct {
	conn *websocket.Conn
}

func (p *wsPeer) Send(ctx context.Context, env jobs.Envelope) error {
	data, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	return p.conn.Write(ctx, websocket.MessageText, data)
}

func (p *wsPeer) Close(code int, reason string) error {
	return p.conn.Close(websocket.StatusCode(code), reason)
}

// readyFrame is the only inbound frame shape the progress socket expects
// from the client (spec §4.6 "ready handshake").
type readyFrame struct {
	Type string `json:"type"`
}

// handleWebSocket upgrades to the progress socket, validates the job's auth
// token, and attaches the connection as the job's exclusive peer (spec §4.6,
// §6). Close codes follow spec: 4401 invalid/missing token, 4409 superseded
// by a newer connection (raised by Entity.AttachPeer), 1000 normal closure.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "jobId is required", http.StatusBadRequest)
		return
	}
	entity, ok := s.registry.Get(jobID)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	state, token := entity.GetStateAndAuth()
	if token.Value == "" || wsToken(r) != token.Value {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusCode(4401), "invalid or missing token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		logging.Log(r.Context()).Warn("websocket accept failed", "jobId", jobID, "err", err)
		return
	}
	defer conn.CloseNow()

	peer := &wsPeer{conn: conn}

	if state.Status.Terminal() {
		_ = peer.Close(1000, "job already in a terminal state")
		return
	}

	entity.AttachPeer(peer)
	defer entity.DetachPeer(peer)

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var frame readyFrame
		if sonic.Unmarshal(data, &frame) == nil && frame.Type == "ready" {
			entity.MarkReady()
			ack := jobs.NewReadyAck(jobID, state.Pipeline)
			_ = peer.Send(r.Context(), ack)
		}
	}
}
