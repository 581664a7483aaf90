package model

import "time"

// User is the sanitized projection of a stored account. Credential material
// never appears here.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"displayName"`
	DietaryPreferences []string  `json:"dietaryPreferences"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
