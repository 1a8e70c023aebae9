package amqp

import (
	"encoding/json"
	"time"
)

// RecomputeMessage tells the worker to rebuild one room's settlement.
// Carries only the room ID and the reason; the worker reads the ledger
// itself so a stale message can never apply stale amounts.
type RecomputeMessage struct {
	RoomID    string    `json:"room_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecomputeMessage(roomID, reason string) *RecomputeMessage {
	return &RecomputeMessage{
		RoomID:    roomID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func (m *RecomputeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecomputeMessageFromJSON(data []byte) (*RecomputeMessage, error) {
	var msg RecomputeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RoomID == "" {
		return nil, errEmptyRoomID
	}
	return &msg, nil
}
