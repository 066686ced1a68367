package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// Message types, also used as routing keys.
const (
	TypeArchiveRequest = "archive.request"
	EventEntryCreated  = "entry.created"
	EventEntryDeleted  = "entry.deleted"
)

// ArchiveRequestMessage asks the archiver to write the document for one month.
// The worker loads the entries itself; only the month travels on the wire.
type ArchiveRequestMessage struct {
	Month       string    `json:"month"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewArchiveRequestMessage creates a request stamped with the current time.
func NewArchiveRequestMessage(month, reason string) *ArchiveRequestMessage {
	return &ArchiveRequestMessage{
		Month:       month,
		Reason:      reason,
		RequestedAt: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ArchiveRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ArchiveRequestMessageFromJSON creates a message from JSON bytes
func ArchiveRequestMessageFromJSON(data []byte) (*ArchiveRequestMessage, error) {
	var msg ArchiveRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Month == "" {
		return nil, errors.New("archive request without month")
	}
	return &msg, nil
}

// EntryEventMessage announces entries created or deleted in a month.
type EntryEventMessage struct {
	Event     string    `json:"event"`
	Month     string    `json:"month"`
	IDs       []string  `json:"ids"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryEventMessage(event, month string, ids []string) *EntryEventMessage {
	return &EntryEventMessage{
		Event:     event,
		Month:     month,
		IDs:       ids,
		Timestamp: time.Now(),
	}
}

func (m *EntryEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryEventMessageFromJSON(data []byte) (*EntryEventMessage, error) {
	var msg EntryEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
