package models

// User is the public identity joined into chat and message payloads.
// Credentials live with the auth service; this table mirrors identity only.
type User struct {
	ID     int     `db:"id" json:"id"`
	Name   string  `db:"name" json:"name"`
	Avatar *string `db:"avatar" json:"avatar"`
	Status *string `db:"status" json:"status"`
	// Online is filled from the presence store, never persisted.
	Online bool `db:"-" json:"online"`
}
