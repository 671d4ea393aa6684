// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// User is a row of the external user directory. The directory is read-only
// from this service's perspective; rows are created and maintained elsewhere.
type User struct {
	ID        string  `db:"id" json:"id"`
	Email     string  `db:"email" json:"email"`
	FirstName *string `db:"first_name" json:"first_name"`
	LastName  *string `db:"last_name" json:"last_name"`
	Role      *string `db:"role" json:"-"`
}
