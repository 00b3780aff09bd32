// Package relay republishes session events onto NATS subjects so other
// local surfaces (dashboards, transcript recorders) can observe the
// conversation without touching the gate connection.
package relay

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/client"
	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
)

const (
	SubjectEntry = "chat.entry"
	SubjectCards = "chat.cards"
	SubjectState = "chat.state"
)

type Relay struct {
	Conn *nats.Conn
}

func NewRelay(nc *nats.Conn) *Relay {
	return &Relay{Conn: nc}
}

// Hooks returns client hooks that mirror every session event onto NATS and
// then forward to next, so the relay can wrap the UI's own hooks.
func (r *Relay) Hooks(next client.Hooks) client.Hooks {
	return client.Hooks{
		OnEntry: func(entry comm.ChatEntry) {
			r.publish(SubjectEntry, entry)
			if next.OnEntry != nil {
				next.OnEntry(entry)
			}
		},
		OnCards: func(cards []comm.CardRecord) {
			r.publish(SubjectCards, struct {
				Cards []comm.CardRecord `json:"cards"`
			}{Cards: cards})
			if next.OnCards != nil {
				next.OnCards(cards)
			}
		},
		OnState: func(state client.State, err error) {
			msg := struct {
				State string `json:"state"`
				Error string `json:"error,omitempty"`
			}{State: state.String()}
			if err != nil {
				msg.Error = err.Error()
			}
			r.publish(SubjectState, msg)
			if next.OnState != nil {
				next.OnState(state, err)
			}
		},
	}
}

func (r *Relay) publish(subject string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Errorf("relay marshal for %s failed: %v", subject, err)
		return
	}
	if err := r.Conn.Publish(subject, payload); err != nil {
		log.Errorf("relay publish to %s failed: %v", subject, err)
	}
}
