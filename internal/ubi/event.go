// Package ubi reads user behavior insight events: the impressions and clicks
// the click model turns into implicit judgments.
package ubi

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Action names recognised by the click model.
const (
	ActionImpression = "impression"
	ActionClick      = "click"
)

// Event is one user interaction with a search result.
type Event struct {
	QueryID    string    `json:"query_id"`
	UserQuery  string    `json:"user_query"`
	ActionName string    `json:"action_name"`
	DocumentID string    `json:"object_id"`
	Position   int       `json:"position"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsClick reports whether the event is a click.
func (e Event) IsClick() bool { return e.ActionName == ActionClick }

// IsImpression reports whether the event is an impression.
func (e Event) IsImpression() bool { return e.ActionName == ActionImpression }

// wireEvent accepts both the flat layout above and the nested layout of
// the UBI events index, where the document and rank live under
// event_attributes.
type wireEvent struct {
	QueryID         string     `json:"query_id"`
	UserQuery       string     `json:"user_query"`
	ActionName      string     `json:"action_name"`
	ObjectID        string     `json:"object_id"`
	Position        int        `json:"position"`
	Timestamp       time.Time  `json:"timestamp"`
	EventAttributes *wireAttrs `json:"event_attributes,omitempty"`
}

type wireAttrs struct {
	Object struct {
		ObjectID string `json:"object_id"`
	} `json:"object"`
	Position struct {
		Ordinal int `json:"ordinal"`
	} `json:"position"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		QueryID:    w.QueryID,
		UserQuery:  w.UserQuery,
		ActionName: w.ActionName,
		DocumentID: w.ObjectID,
		Position:   w.Position,
		Timestamp:  w.Timestamp,
	}
	if w.EventAttributes != nil {
		if e.DocumentID == "" {
			e.DocumentID = w.EventAttributes.Object.ObjectID
		}
		if e.Position == 0 {
			e.Position = w.EventAttributes.Position.Ordinal
		}
	}
	return nil
}

// EventSource provides events whose timestamp falls in [from, to]. A nil
// bound is open.
type EventSource interface {
	Events(ctx context.Context, from, to *time.Time) ([]Event, error)
}

func inWindow(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

// MemorySource serves a fixed slice of events.
type MemorySource struct {
	events []Event
}

// NewMemorySource creates a source over events. The slice is copied and
// sorted by timestamp.
func NewMemorySource(events []Event) *MemorySource {
	cp := append([]Event(nil), events...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Timestamp.Before(cp[j].Timestamp) })
	return &MemorySource{events: cp}
}

// Events implements EventSource.
func (s *MemorySource) Events(ctx context.Context, from, to *time.Time) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range s.events {
		if inWindow(e.Timestamp, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}
