package store

import "context"

// DocumentRepository holds the documents a peer can serve.
type DocumentRepository interface {
	AddDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
}
