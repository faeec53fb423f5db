package models

import "time"

// Identity is the actor a local profile acts as.
type Identity struct {
	Profile   string    `json:"profile"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	ActorType string    `json:"actor_type"`
	UpdatedAt time.Time `json:"updated_at"`
}
