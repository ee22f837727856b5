package queue

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Request is a mutating call deferred while the client was offline
type Request struct {
	ID         string      `json:"id"`
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	RetryCount int         `json:"retryCount"`
}

// NewRequest creates a request with a fresh ID and a zero retry count. The
// header is cloned so later changes by the caller are not captured.
func NewRequest(method, url string, header http.Header, body []byte) Request {
	return Request{
		ID:         uuid.NewString(),
		Method:     method,
		URL:        url,
		Header:     header.Clone(),
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Marshal serializes the request to JSON
func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal parses a request serialized with Marshal
func Unmarshal(data []byte) (Request, error) {
	var r Request
	err := json.Unmarshal(data, &r)
	return r, err
}
