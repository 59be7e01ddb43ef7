package websocket

import (
	"encoding/json"
	"time"
)

// Типы сообщений для клиентов страницы регистрации
const (
	// AVAILABILITY_UPDATE сообщает о новом состоянии мест
	AVAILABILITY_UPDATE = "AVAILABILITY_UPDATE"
)

// Event — конверт любого сообщения клиенту
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func newEvent(eventType string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Type:      eventType,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
}
