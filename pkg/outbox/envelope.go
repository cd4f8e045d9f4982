package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// envelopeVersion is bumped when the shape of Data changes incompatibly.
const envelopeVersion = 1

// ActorRef is the user behind an event. Consumers only see ids and role.
type ActorRef struct {
	UserID   uuid.UUID  `json:"userId"`
	DealerID *uuid.UUID `json:"dealerId,omitempty"`
	Role     enums.Role `json:"role,omitempty"`
}

// ActorOf copies the request actor into an event reference.
func ActorOf(a auth.Actor) *ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &ActorRef{UserID: a.UserID, DealerID: a.DealerID, Role: a.Role}
}

// PayloadEnvelope wraps every outbox payload. EventID is independent of the
// outbox row id so consumers can dedupe on it across replays.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload. Missing version means version 1.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, err
	}
	if env.Version == 0 {
		env.Version = envelopeVersion
	}
	return env, nil
}
