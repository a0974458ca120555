package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

type UUID struct {
	value uuid.UUID
}

func GenerateUUID() UUID {
	return UUID{
		value: uuid.New(),
	}
}

func NewUUID(s string) (UUID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid uuid '%s': %w", s, err)
	}
	return UUID{value: parsed}, nil
}

func (u UUID) String() string {
	return u.value.String()
}

func (u UUID) IsZero() bool {
	return u.value == uuid.Nil
}

func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.value.String()), nil
}

func (u *UUID) UnmarshalText(data []byte) error {
	parsed, err := uuid.Parse(string(data))
	if err != nil {
		return fmt.Errorf("invalid uuid '%s': %w", string(data), err)
	}
	u.value = parsed
	return nil
}

// Value implements driver.Valuer so UUID columns scan through sqlx.
func (u UUID) Value() (driver.Value, error) {
	return u.value.String(), nil
}

func (u *UUID) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return u.UnmarshalText([]byte(v))
	case []byte:
		return u.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", src)
	}
}
