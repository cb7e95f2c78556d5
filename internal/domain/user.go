package domain

import "time"

// Profile is the stored birth data of a registered user. Report endpoints that
// act on "me" build their fingerprints from it.
type Profile struct {
	UserID    string
	Name      string
	Locale    string
	Birth     BirthData
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location returns the profile's birth timezone, falling back to UTC.
func (p Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Birth.BirthTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
