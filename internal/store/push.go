package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/happenings/internal/civil"
	"github.com/dukerupert/happenings/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const subscriptionColumns = `id, endpoint, p256dh_key, auth_key, device_name, created_at`

// Subscribe stores a subscription, refreshing the keys when the endpoint is
// already known.
func (s *PushStore) Subscribe(endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}
	return s.GetByEndpoint(endpoint)
}

func (s *PushStore) GetByEndpoint(endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.QueryRow(
		`SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE endpoint = ?`, endpoint,
	).Scan(&sub.ID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", err)
	}
	return &sub, nil
}

// DeleteByEndpoint removes a subscription and, through the foreign key, all
// of its follows.
func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

func (s *PushStore) Follow(subscriptionID, eventID int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO event_follows (subscription_id, event_id) VALUES (?, ?)`,
		subscriptionID, eventID,
	)
	if err != nil {
		return fmt.Errorf("follow event: %w", err)
	}
	return nil
}

func (s *PushStore) Unfollow(subscriptionID, eventID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM event_follows WHERE subscription_id = ? AND event_id = ?`,
		subscriptionID, eventID,
	)
	if err != nil {
		return fmt.Errorf("unfollow event: %w", err)
	}
	return nil
}

// Followers returns the subscriptions following an event.
func (s *PushStore) Followers(eventID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.endpoint, s.p256dh_key, s.auth_key, s.device_name, s.created_at
		 FROM push_subscriptions s
		 JOIN event_follows f ON f.subscription_id = s.id
		 WHERE f.event_id = ?
		 ORDER BY s.id`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// FollowedEventIDs returns the published events that have at least one
// follower.
func (s *PushStore) FollowedEventIDs() ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT f.event_id FROM event_follows f
		 JOIN events e ON e.id = f.event_id
		 WHERE e.status = ?
		 ORDER BY f.event_id`, model.EventPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("list followed events: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordSent marks a notification as sent and reports whether this call
// was the first to do so.
func (s *PushStore) RecordSent(eventID int64, date civil.Date, kind string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO sent_notifications (event_id, date, kind) VALUES (?, ?, ?)`,
		eventID, date.String(), kind,
	)
	if err != nil {
		return false, fmt.Errorf("record sent notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ForgetSent clears the dedup record so the notification can be sent again.
func (s *PushStore) ForgetSent(eventID int64, date civil.Date, kind string) error {
	_, err := s.db.Exec(
		`DELETE FROM sent_notifications WHERE event_id = ? AND date = ? AND kind = ?`,
		eventID, date.String(), kind,
	)
	if err != nil {
		return fmt.Errorf("forget sent notification: %w", err)
	}
	return nil
}

// CleanupSent deletes dedup records for dates before the given date.
func (s *PushStore) CleanupSent(before civil.Date) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sent_notifications WHERE date < ?`, before.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications: %w", err)
	}
	return result.RowsAffected()
}
