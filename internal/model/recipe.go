package model

import "time"

type Recipe struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"createdAt"`
}
