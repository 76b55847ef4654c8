package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const contentAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var contentTypes = []string{"text/plain", "application/pdf", "image/jpeg"}

// RandomDocument makes an "RFC nnn" document with random metadata and content.
func RandomDocument(r *rand.Rand) Document {
	number := 100 + r.IntN(900)
	return NewDocument(
		fmt.Sprintf("RFC %d", number),
		fmt.Sprintf("Random Title %d", number),
		r,
	)
}

// NewDocument keeps id and title and randomizes everything else.
func NewDocument(id, title string, r *rand.Rand) Document {
	content := make([]byte, 100+r.IntN(901))
	for i := range content {
		content[i] = contentAlphabet[r.IntN(len(contentAlphabet))]
	}

	// Somewhere in the last ten years, at second precision.
	age := time.Duration(r.Int64N(int64(10 * 365 * 24 * time.Hour)))
	modified := time.Now().Add(-age).UTC().Truncate(time.Second)

	return Document{
		ID:            id,
		Title:         title,
		LastModified:  modified,
		ContentLength: len(content),
		ContentType:   contentTypes[r.IntN(len(contentTypes))],
		Content:       content,
	}
}

// Seed stores n random documents and returns them.
func Seed(ctx context.Context, repo DocumentRepository, n int, r *rand.Rand) ([]Document, error) {
	docs := make([]Document, 0, n)
	for i := 0; i < n; i++ {
		doc := RandomDocument(r)
		if err := repo.AddDocument(ctx, doc); err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
