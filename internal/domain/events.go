package domain

import "time"

// NotificationEvent is the envelope relayed between processes over Kafka.
type NotificationEvent struct {
	Origin       string       `json:"origin"`
	Notification Notification `json:"notification"`
	PublishedAt  time.Time    `json:"published_at"`
}
