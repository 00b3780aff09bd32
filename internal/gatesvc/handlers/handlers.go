// Package handlers serves the fixture gate: a websocket endpoint that
// answers each user utterance with a canned frame in one of the known wire
// shapes. It stands in for the real conversational backend during
// development and testing; there is no model and there are no tools.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	config "github.com/jidehen/smart-sdk-travel-agent/configs"
	"github.com/jidehen/smart-sdk-travel-agent/internal/gatesvc/frames"
)

type Handler struct {
	upgrader websocket.Upgrader
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func NewHandler() *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the connection and answers inbound utterances
// with canned frames.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		http.Error(w, "Failed to upgrade to WebSocket", http.StatusInternalServerError)
		return
	}

	socketId := uuid.New().String()
	userId := r.URL.Query().Get("user")
	if _, ok := frames.Wallets[userId]; !ok {
		userId = "user1"
	}

	log.Infof("New gate connection established: %s (user %s)", socketId, userId)

	go h.handleConnection(conn, socketId, userId)
}

func (h *Handler) handleConnection(conn *websocket.Conn, socketId, userId string) {
	defer func() {
		log.Infof("Closing gate connection: %s", socketId)
		conn.Close()
	}()

	// Alternates the wallet wire shape so both card decoders get exercised.
	structured := true

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("Gate connection unexpected close for socket %s: %v", socketId, err)
			} else {
				log.Infof("Gate connection closed normally for socket: %s", socketId)
			}
			break
		}

		utterance := string(raw)
		log.Debugf("Received utterance from socket %s: %q", socketId, utterance)

		reply := h.replyFor(utterance, userId, &structured)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			log.Errorf("Failed to write reply to socket %s: %v", socketId, err)
			break
		}
	}
}

// replyFor picks the canned frame for one utterance.
func (h *Handler) replyFor(utterance, userId string, structured *bool) string {
	lower := strings.ToLower(utterance)
	switch {
	// Benefit questions usually name cards too, so this check comes first.
	case strings.Contains(lower, "benefit"):
		return frames.BenefitsSummary()
	case strings.Contains(lower, "payment") || strings.Contains(lower, "card") || strings.Contains(lower, "wallet"):
		wallet := frames.Wallets[userId]
		if *structured {
			*structured = false
			return frames.StructuredWallet(wallet)
		}
		*structured = true
		return frames.TextWallet(wallet)
	case strings.Contains(lower, "flight"):
		return frames.FlightSummary()
	default:
		return frames.Help()
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "gate service is running at port " + os.Getenv("GATE_SERVICE_PORT"),
		Code:    200,
		Data:    config.GetInstanceId(),
	}
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode health response: %v", err)
	}
}
