package model

import "time"

// Delegate is a remote worker agent as known to the delegate registry.
type Delegate struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	HostName  string    `json:"host_name"`
	Type      string    `json:"type"`
	ProfileID string    `json:"profile_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DelegateProfile groups delegate configuration and scoping rules.
type DelegateProfile struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityKind names a registry of display-named setup entities.
type EntityKind string

const (
	EntityApplication EntityKind = "application"
	EntityService     EntityKind = "service"
	EntityEnvironment EntityKind = "environment"
)

// NamedEntity is an application, service or environment with a display name.
type NamedEntity struct {
	Kind      EntityKind `json:"kind"`
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Name      string     `json:"name"`
}

// Valid reports whether k names a known entity registry.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityApplication, EntityService, EntityEnvironment:
		return true
	}
	return false
}
