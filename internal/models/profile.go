package models

import "time"

// Profile is one side of the matching platform: a listing-side landlord or a
// seeker-side tenant. The reference server authenticates profiles and scopes
// conversations to them.
type Profile struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	Image        string    `json:"image"`
	Role         Role      `gorm:"not null" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Display returns the lazily-fetched counterpart view of this profile.
func (p *Profile) Display() PartnerDisplay {
	return PartnerDisplay{
		Title: p.Title,
		Name:  p.Name,
		Image: p.Image,
	}
}
