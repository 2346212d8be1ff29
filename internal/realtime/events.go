package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Topics
const (
	TopicPhotos = "photos"
)

// Stream names
const (
	StreamChanges = "stream:changes"
)

// NotificationsTopic is the topic carrying changes to one recipient's notifications.
func NotificationsTopic(recipientID string) string {
	return "notifications:" + recipientID
}

// UserTopic is the topic carrying changes to one profile document.
func UserTopic(userID string) string {
	return "users:" + userID
}

// PhotosByUserTopic is the topic carrying changes to one user's photos.
func PhotosByUserTopic(userID string) string {
	return "photos:" + userID
}

// Event announces that a document changed. Listeners re-read the query they
// watch; the event itself carries no document body.
type Event struct {
	Topic     string `json:"topic"`
	Kind      string `json:"kind"`
	DocID     string `json:"doc_id"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(topic, kind, docID string) Event {
	return Event{
		Topic:     topic,
		Kind:      kind,
		DocID:     docID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ToMap converts the event to a map for Redis XADD.
func (e Event) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"topic": e.Topic,
		"data":  string(data),
	}, nil
}

// ParseEvent parses an Event from Redis stream message values.
func ParseEvent(values map[string]interface{}) (Event, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
