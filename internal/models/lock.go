package models

import "time"

// Lock marks a record as being edited by one user. Locks live in their own
// collection, keyed by record id. Token changes on every write and guards
// compare-and-swap updates.
type Lock struct {
	RecordID  string    `json:"record_id" firestore:"record_id" bson:"_id"`
	User      string    `json:"user" firestore:"user" bson:"user"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp" bson:"timestamp"`
	Token     string    `json:"token" firestore:"token" bson:"token"`
}

// Expired reports whether the lock is older than duration at now.
func (l *Lock) Expired(now time.Time, duration time.Duration) bool {
	return now.Sub(l.Timestamp) >= duration
}
