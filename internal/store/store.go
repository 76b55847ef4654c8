// Package store keeps a peer's local documents in sqlite.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrLengthMismatch = errors.New("content length does not match content")
)

type Document struct {
	ID            string
	Title         string
	LastModified  time.Time
	ContentLength int
	ContentType   string
	Content       []byte
}

func (d Document) Validate() error {
	if d.ID == "" {
		return errors.New("document id is empty")
	}
	if d.ContentLength != len(d.Content) {
		return fmt.Errorf("%w: header %d, body %d", ErrLengthMismatch, d.ContentLength, len(d.Content))
	}
	return nil
}

// documentRecord is the row layout; documents are append-only so Seq orders them.
type documentRecord struct {
	Seq           uint   `gorm:"primaryKey"`
	DocumentID    string `gorm:"index;not null"`
	Title         string
	LastModified  int64
	ContentLength int
	ContentType   string
	Content       []byte
}

func (documentRecord) TableName() string { return "documents" }

func toRecord(d Document) documentRecord {
	return documentRecord{
		DocumentID:    d.ID,
		Title:         d.Title,
		LastModified:  d.LastModified.Unix(),
		ContentLength: d.ContentLength,
		ContentType:   d.ContentType,
		Content:       d.Content,
	}
}

func (r documentRecord) document() Document {
	return Document{
		ID:            r.DocumentID,
		Title:         r.Title,
		LastModified:  time.Unix(r.LastModified, 0).UTC(),
		ContentLength: r.ContentLength,
		ContentType:   r.ContentType,
		Content:       r.Content,
	}
}

// Models lists the tables DocumentStore needs migrated.
func Models() []any {
	return []any{&documentRecord{}}
}

type DocumentStore struct {
	mu sync.RWMutex
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) AddDocument(ctx context.Context, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	rec := toRecord(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("storing %q: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the earliest stored document with the given id.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec documentRecord
	err := s.db.WithContext(ctx).Where("document_id = ?", id).Order("seq").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading %q: %w", id, err)
	}
	return rec.document(), nil
}

func (s *DocumentStore) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []documentRecord
	if err := s.db.WithContext(ctx).Order("seq").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	docs := make([]Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.document())
	}
	return docs, nil
}
