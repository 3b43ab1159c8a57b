package models

import (
	"database/sql"
	"time"
)

// UserPin is a user's server-held PIN material. Salt is NULL for rows
// created before a PIN was set up.
type UserPin struct {
	UserID    string
	Salt      sql.NullString
	UpdatedAt time.Time
}

// HasSalt reports whether a usable salt is stored.
func (p *UserPin) HasSalt() bool {
	return p != nil && p.Salt.Valid && p.Salt.String != ""
}
