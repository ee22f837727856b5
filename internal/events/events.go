package events

import (
	"time"
)

// Name identifies an event kind
type Name string

const (
	NameNetworkOnline  Name = "network:online"
	NameNetworkOffline Name = "network:offline"
	NameRequestStart   Name = "request:start"
	NameRequestSuccess Name = "request:success"
	NameRequestError   Name = "request:error"
	NameQueueSuccess   Name = "queue:success"
	NameQueueFailed    Name = "queue:failed"
)

// Names lists every event kind in a stable order
var Names = []Name{
	NameNetworkOnline,
	NameNetworkOffline,
	NameRequestStart,
	NameRequestSuccess,
	NameRequestError,
	NameQueueSuccess,
	NameQueueFailed,
}

// Event is implemented by every payload the bus carries
type Event interface {
	Name() Name
}

// NetworkOnline fires when the client transitions from offline to online
type NetworkOnline struct {
	At time.Time `json:"at"`
}

// NetworkOffline fires when the client transitions from online to offline
type NetworkOffline struct {
	At time.Time `json:"at"`
}

// RequestStart fires once per dispatch that is not served from cache
type RequestStart struct {
	RequestID string    `json:"requestId"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	At        time.Time `json:"at"`
}

// RequestSuccess is the terminal event of a dispatch that got a 2xx reply
type RequestSuccess struct {
	RequestID string        `json:"requestId"`
	Method    string        `json:"method"`
	URL       string        `json:"url"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration"`
}

// RequestError is the terminal event of a dispatch that failed. Queued is set
// when the request was deferred to the offline queue.
type RequestError struct {
	RequestID string        `json:"requestId"`
	Method    string        `json:"method"`
	URL       string        `json:"url"`
	Status    int           `json:"status,omitempty"`
	Duration  time.Duration `json:"duration"`
	Queued    bool          `json:"queued"`
	Err       error         `json:"-"`
}

// QueueSuccess fires when a queued request is replayed successfully
type QueueSuccess struct {
	QueueID  string `json:"queueId"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Attempts int    `json:"attempts"`
}

// QueueFailed fires when a queued request exhausts its retry budget and is
// discarded. Err is the last replay failure.
type QueueFailed struct {
	QueueID  string `json:"queueId"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Attempts int    `json:"attempts"`
	Err      error  `json:"-"`
}

func (NetworkOnline) Name() Name  { return NameNetworkOnline }
func (NetworkOffline) Name() Name { return NameNetworkOffline }
func (RequestStart) Name() Name   { return NameRequestStart }
func (RequestSuccess) Name() Name { return NameRequestSuccess }
func (RequestError) Name() Name   { return NameRequestError }
func (QueueSuccess) Name() Name   { return NameQueueSuccess }
func (QueueFailed) Name() Name    { return NameQueueFailed }

// ErrorOf returns the error carried by e, if any
func ErrorOf(e Event) error {
	switch ev := e.(type) {
	case RequestError:
		return ev.Err
	case QueueFailed:
		return ev.Err
	}
	return nil
}
