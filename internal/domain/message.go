package domain

import "time"

// Message is one raw entry in the signal archive as delivered by the
// message transport collaborator. Delivery is at-least-once; deduplication
// happens downstream.
type Message struct {
	ID        int64     // Archive identifier
	Text      string    // Raw message text
	Timestamp time.Time // Source timestamp
}
