package domain

import "time"

// Document is a retrievable passage with its embedding.
type Document struct {
	ID        int64
	Content   string
	Embedding []float32
	CreatedAt time.Time
}
