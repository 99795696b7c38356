package models

import "time"

// Tenant is a client company whose site embeds the chat widget. Handle is
// the canonical name used to derive the tenant's message partition.
type Tenant struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// KeywordRule is a tenant-owned automated reply trigger. Rules are managed
// by the admin UI; the router only reads them.
type KeywordRule struct {
	ID       int64  `json:"id"`
	Tenant   string `json:"tenant"`
	Keyword  string `json:"keyword"`
	Response string `json:"response"`
	Active   bool   `json:"active"`
}
