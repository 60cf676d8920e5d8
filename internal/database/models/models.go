// Package models holds the plain data structures persisted by the
// database package.
package models

import "time"

// Call is one entry in the call history.
type Call struct {
	ID              string
	CallerID        string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	AgentsUsed      string // JSON array of agent names, in visit order
	Outcome         string // "completed", "rejected", "security_hangup", ...
	CostUSD         float64
}

// Task is a unit of work an agent recorded during a call.
type Task struct {
	ID          string
	AgentName   string
	Description string
	Status      string // "pending", "running", "done", "failed"
	Result      string
	Error       string
	Progress    float64
	CallerID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Idea is a captured idea with an append-only note log.
type Idea struct {
	ID          string
	Title       string
	Description string
	Category    string
	Priority    int
	Status      string // "new", "active", "parked", "done"
	Notes       string // JSON array of note strings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project is a longer-running effort grown out of one or more ideas.
type Project struct {
	ID          string
	Title       string
	Description string
	Status      string // "planning", "active", "paused", "done"
	Plan        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem is one position of a phoned-in order.
type OrderItem struct {
	Article      string `json:"artikel"`
	Quantity     int    `json:"menge"`
	Manufacturer string `json:"hersteller,omitempty"`
}

// Order is a customer order taken over the phone.
type Order struct {
	ID        string
	Customer  string
	CallerID  string
	Status    string // "open", "submitted", "cancelled"
	Items     string // JSON array of OrderItem
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlacklistEntry is a blocked caller number.
type BlacklistEntry struct {
	CallerID  string
	Reason    string
	BlockedAt time.Time
}

// WhitelistEntry is a caller that bypasses the security gate.
type WhitelistEntry struct {
	CallerID string
	Note     string
	AddedAt  time.Time
}
