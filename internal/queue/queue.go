// Package queue holds the types shared by the Work Queue adapters.
//
// A Work Queue delivers each message at least once. A received message is
// leased: it stays invisible to other consumers until the lease expires or
// the holder deletes it with its receipt handle. Messages that exceed the
// configured delivery count are moved to a dead-letter destination by the
// substrate.
package queue

import (
	"errors"
	"time"
)

// ErrStaleReceipt is returned when a receipt handle no longer identifies the
// current lease, because the lease expired and the message was redelivered.
var ErrStaleReceipt = errors.New("stale receipt handle")

// ErrClosed is returned by adapters used after Close
var ErrClosed = errors.New("queue closed")

// ErrDisconnected is returned when the connection to the queue is gone and
// cannot be reopened in process. Processors stop on it.
var ErrDisconnected = errors.New("queue connection lost")

// Message is one leased delivery
type Message struct {
	ID            string
	Body          []byte
	Receipt       string
	DeliveryCount int
	ReceivedAt    time.Time
}
