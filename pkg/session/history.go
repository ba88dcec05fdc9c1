/*
Package session keeps an in-memory record of the queries made during a chat
session. The history is append-only and bounded: when the limit is reached
the oldest entries are evicted.
*/
package session

import (
	"encoding/json"
	"sync"
	"time"

	// Packages
	uuid "github.com/google/uuid"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Entry is a single query and its outcome. The response is kept as the
// ordered chunks produced while answering: the model's initial text, one
// chunk per tool call, and the follow-up text.
type Entry struct {
	Id        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  []string  `json:"response,omitempty"`
	Tools     []string  `json:"tools,omitempty"` // names of tools invoked for this query
}

// History is a bounded, append-only record of queries. It is safe for
// concurrent use.
type History struct {
	mu      sync.RWMutex
	entries []*Entry
	limit   int
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultLimit = 100
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewHistory creates a history with the given entry limit. A limit of zero
// or less uses DefaultLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{
		entries: make([]*Entry, 0, limit),
		limit:   limit,
	}
}

///////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Entry) String() string {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Append records a query, its response chunks and the tools invoked,
// evicting the oldest entry if the history is full. Returns the new entry.
func (h *History) Append(query string, chunks []string, tools ...string) *Entry {
	entry := &Entry{
		Id:        uuid.NewString(),
		Timestamp: time.Now(),
		Query:     query,
		Response:  chunks,
		Tools:     tools,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) >= h.limit {
		h.entries = h.entries[len(h.entries)-h.limit+1:]
	}
	h.entries = append(h.entries, entry)

	return entry
}

// Len returns the number of entries in the history
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Last returns up to n entries, oldest first, ending with the most recent
func (h *History) Last(n int) []*Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	result := make([]*Entry, n)
	copy(result, h.entries[len(h.entries)-n:])
	return result
}
