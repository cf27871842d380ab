package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"costalloc/internal/core"
)

// CascadeRequestMessage asks a worker to propagate the carry-over of a saved
// period into the following periods of the same year.
type CascadeRequestMessage struct {
	ID          string    `json:"id"`
	Year        int       `json:"year"`
	Quarter     int       `json:"quarter"`
	ProjectType string    `json:"projectType"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewCascadeRequestMessage(from core.Period, t core.ProjectType) *CascadeRequestMessage {
	return &CascadeRequestMessage{
		ID:          uuid.NewString(),
		Year:        from.Year,
		Quarter:     int(from.Quarter),
		ProjectType: string(t),
		Timestamp:   time.Now(),
	}
}

// Target validates the message and returns the cascade origin.
func (m *CascadeRequestMessage) Target() (core.Period, core.ProjectType, error) {
	p, err := core.NewPeriod(m.Year, m.Quarter)
	if err != nil {
		return core.Period{}, "", err
	}
	t, err := core.ParseProjectType(m.ProjectType)
	if err != nil {
		return core.Period{}, "", err
	}
	return p, t, nil
}

// ToJSON converts the message to JSON bytes
func (m *CascadeRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CascadeRequestMessageFromJSON decodes a message body.
func CascadeRequestMessageFromJSON(data []byte) (*CascadeRequestMessage, error) {
	var msg CascadeRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("cascade request without id")
	}
	return &msg, nil
}
