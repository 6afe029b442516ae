package models

import "time"

// Upload describes one temporary artifact of an in-flight request.
type Upload struct {
	Id        string    `json:"id"`
	Path      string    `json:"path"`
	Kind      string    `json:"kind"` // "upload" or "roi"
	CreatedAt time.Time `json:"created_at"`
}
