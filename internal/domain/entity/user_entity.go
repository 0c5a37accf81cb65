package entity

import (
	"time"
)

// User is the aggregate root for the account domain.
// Password holds the bcrypt hash; hashing happens upstream of the
// repository, never inside it.
//
// Avatar, RefreshToken and PasswordResetToken are nullable columns, so
// absence must survive the round trip to Postgres — hence pointers.
type User struct {
	ID                 string
	Email              string
	Password           string
	Avatar             *string
	Confirmed          bool
	RefreshToken       *string
	PasswordResetToken *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
