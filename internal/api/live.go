package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/pkg/scoring"
)

const (
	// liveReadLimit caps a single live-scoring frame.
	liveReadLimit = 64 << 10

	// liveWriteTimeout bounds each reply write.
	liveWriteTimeout = 5 * time.Second
)

// liveMessage is one client frame on /v1/live. Interim frames (Final false)
// carry partial recognizer output and are scored without being recorded.
type liveMessage struct {
	Phrase     string `json:"phrase"`
	Transcript string `json:"transcript"`
	Tier       string `json:"tier"`
	Final      bool   `json:"final"`
}

// liveReply is the server frame answering one liveMessage.
type liveReply struct {
	Final bool `json:"final"`
	scoring.Result
}

// live upgrades to a websocket and answers every frame with a score. A
// malformed frame gets an {"error"} reply and the connection stays open.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(liveReadLimit)

	ctx := r.Context()
	log := observe.Logger(ctx)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				log.Debug("live connection closed", slog.Any("err", err))
			}
			return
		}
		if typ != websocket.MessageText {
			_ = conn.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		var reply any
		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			reply = errResp{Error: "invalid JSON: " + err.Error()}
		} else {
			reply = s.liveScore(ctx, msg)
		}

		wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
		err = wsjson.Write(wctx, conn, reply)
		cancel()
		if err != nil {
			log.Debug("live write failed", slog.Any("err", err))
			return
		}
	}
}

func (s *Server) liveScore(ctx context.Context, msg liveMessage) liveReply {
	tier := scoring.ParseTier(msg.Tier)
	if msg.Final {
		return liveReply{Final: true, Result: s.svc.Score(ctx, msg.Phrase, msg.Transcript, tier)}
	}
	return liveReply{Result: scoring.Score(msg.Phrase, msg.Transcript, tier)}
}
