// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/sto/internal/game"
	"github.com/jason-s-yu/sto/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the WebSocket subprotocol clients must request.
const Subprotocol = "sto"

// GameMessage represents the structure for incoming WebSocket messages. Only the fields
// relevant to Type are read.
type GameMessage struct {
	Type string `json:"type"`

	GameID   uuid.UUID `json:"gameId,omitempty"`
	Nickname string    `json:"nickname,omitempty"`

	// create_game: optional house rule overrides, see game.HouseRules.Update
	Rules map[string]interface{} `json:"rules,omitempty"`

	// request_draw
	Source game.DrawSource `json:"source,omitempty"`

	// play_drawn
	Keep      bool `json:"keep,omitempty"`
	SwapIndex *int `json:"swapIndex,omitempty"`

	// respond_reaction
	HandIndex *int       `json:"handIndex,omitempty"`
	TargetID  *uuid.UUID `json:"targetId,omitempty"`
}

var errMissingHandIndex = &game.Error{Kind: game.KindValidation, Msg: "handIndex is required"}

// GameWSHandler upgrades the HTTP connection to WebSocket, assigns the connection a player
// id, registers it with the hub and then starts the read loop. Cross-origin upgrades are
// accepted only from allowedOrigins, the same list the CORS handler uses.
func GameWSHandler(logger *logrus.Logger, gs *GameServer, hub *Hub, allowedOrigins []string) http.HandlerFunc {
	patterns := originPatterns(allowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: patterns,
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != Subprotocol {
			logger.Warnf("Client connected with invalid subprotocol: %q", c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'sto' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		playerID := uuid.New()
		hub.Register(ctx, playerID, c)
		hub.Send(playerID, Event{Type: EventConnected, PlayerID: &playerID})

		err = readGameMessages(ctx, c, gs, hub, playerID, logger)

		hub.Unregister(playerID)
		gs.Disconnect(playerID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
	}
}

// readGameMessages reads client messages until the connection closes and routes each one
// to the game server. Failures are reported to the sender only.
func readGameMessages(ctx context.Context, c *websocket.Conn, gs *GameServer, hub *Hub, playerID uuid.UUID, logger *logrus.Logger) error {
	log := logger.WithField("player_id", playerID)
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if msgType != websocket.MessageText {
			log.Warnf("Received non-text message type %d. Ignoring.", msgType)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debugf("Invalid JSON received: %v", err)
			hub.Send(playerID, Event{Type: EventError, Kind: game.KindValidation, Message: "Invalid JSON format."})
			continue
		}
		log.Debugf("Received action '%s'", msg.Type)

		if err := dispatch(gs, hub, playerID, msg); err != nil {
			log.WithField("game_id", msg.GameID).Debugf("rejected %s: %v", msg.Type, err)
			hub.Send(playerID, errorEvent(err))
		}
	}
}

// dispatch routes one client message to the matching game server operation.
func dispatch(gs *GameServer, sender Sender, playerID uuid.UUID, msg GameMessage) error {
	switch msg.Type {
	case "create_game":
		_, err := gs.CreateGame(playerID, msg.Nickname, msg.Rules)
		return err
	case "join_game":
		return gs.JoinGame(msg.GameID, playerID, msg.Nickname)
	case "request_draw":
		return gs.RequestDraw(msg.GameID, playerID, msg.Source)
	case "play_drawn":
		return gs.PlayDrawn(msg.GameID, playerID, game.PlayChoice{Keep: msg.Keep, SwapIndex: msg.SwapIndex})
	case "respond_reaction":
		if msg.HandIndex == nil {
			return errMissingHandIndex
		}
		return gs.RespondReaction(msg.GameID, playerID, *msg.HandIndex, msg.TargetID)
	case "declare_sto":
		return gs.DeclareSto(msg.GameID, playerID)
	case "ping":
		sender.Send(playerID, Event{Type: EventPong})
		return nil
	default:
		return &game.Error{Kind: game.KindValidation, Msg: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}
}
