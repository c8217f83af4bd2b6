package models

import "time"

// BlacklistedIP blocks an address from the member-facing endpoints.
type BlacklistedIP struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IP        string    `gorm:"size:64;uniqueIndex;not null" json:"ip"`
	Reason    string    `gorm:"type:text" json:"reason"`
	CreatedBy uint      `gorm:"not null" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
