package models

import "time"

// Identity is the authenticated caller on whose behalf requests are rate
// limited and jobs are owned. Raw API keys are never stored; only the bcrypt
// hash and an 8 character lookup prefix.
type Identity struct {
	ID        string    `yaml:"id"         json:"id"`
	Email     string    `yaml:"email"      json:"email"`
	Tier      Tier      `yaml:"tier"       json:"tier"`
	KeyPrefix string    `yaml:"key_prefix" json:"-"`
	KeyHash   string    `yaml:"key_hash"   json:"-"`
	Disabled  bool      `yaml:"disabled"   json:"disabled,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}
