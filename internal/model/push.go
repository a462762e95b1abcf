package model

import "time"

// Notification kinds, also the dedup key in sent_notifications.
const (
	NotifyReminder  = "reminder"
	NotifyCancelled = "cancelled"
	NotifyChanged   = "changed"
)

// PushSubscription is a browser's web push endpoint.
type PushSubscription struct {
	ID         int64     `json:"id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
