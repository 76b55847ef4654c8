package store_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/db"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
)

func setupTestStore(t *testing.T) *store.DocumentStore {
	t.Helper()
	gdb, err := db.Open(db.MemoryPath, store.Models()...)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return store.NewDocumentStore(gdb)
}

func testDocument(id, body string) store.Document {
	return store.Document{
		ID:            id,
		Title:         "Title of " + id,
		LastModified:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ContentLength: len(body),
		ContentType:   "text/plain",
		Content:       []byte(body),
	}
}

func TestDocumentStore_AddGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := testDocument("RFC 1", "line one\n\nline three\n")
	if err := s.AddDocument(ctx, want); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	got, err := s.GetDocument(ctx, "RFC 1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Title != want.Title || got.ContentType != want.ContentType {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if !got.LastModified.Equal(want.LastModified) {
		t.Errorf("expected %v, got %v", want.LastModified, got.LastModified)
	}
	if !bytes.Equal(got.Content, want.Content) {
		t.Errorf("content mismatch: %q", got.Content)
	}
}

func TestDocumentStore_GetNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetDocument(context.Background(), "RFC 404")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentStore_LengthMismatch(t *testing.T) {
	s := setupTestStore(t)

	doc := testDocument("RFC 2", "abc")
	doc.ContentLength = 10
	if err := s.AddDocument(context.Background(), doc); !errors.Is(err, store.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDocumentStore_ListInOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"RFC 3", "RFC 1", "RFC 2"} {
		if err := s.AddDocument(ctx, testDocument(id, id)); err != nil {
			t.Fatalf("AddDocument failed: %v", err)
		}
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0].ID != "RFC 3" || docs[2].ID != "RFC 2" {
		t.Errorf("expected insertion order, got %s %s %s", docs[0].ID, docs[1].ID, docs[2].ID)
	}
}

func TestDocumentStore_ConcurrentAdds(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AddDocument(ctx, testDocument("RFC 9", "same"))
			_, _ = s.GetDocument(ctx, "RFC 9")
		}()
	}
	wg.Wait()

	docs, _ := s.ListDocuments(ctx)
	if len(docs) != 20 {
		t.Errorf("expected 20 documents, got %d", len(docs))
	}
}

func TestRandomDocument(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 100; i++ {
		doc := store.RandomDocument(r)
		if !strings.HasPrefix(doc.ID, "RFC ") {
			t.Fatalf("unexpected id %q", doc.ID)
		}
		if !strings.HasPrefix(doc.Title, "Random Title ") {
			t.Fatalf("unexpected title %q", doc.Title)
		}
		if doc.ContentLength < 100 || doc.ContentLength > 1000 {
			t.Fatalf("content length %d out of range", doc.ContentLength)
		}
		if err := doc.Validate(); err != nil {
			t.Fatalf("generated invalid document: %v", err)
		}
		if strings.Trim(string(doc.Content), "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789") != "" {
			t.Fatalf("unexpected content alphabet: %q", doc.Content)
		}
	}
}

func TestNewDocumentKeepsIdentity(t *testing.T) {
	doc := store.NewDocument("RFC 7", "Chosen", rand.New(rand.NewPCG(3, 4)))
	if doc.ID != "RFC 7" || doc.Title != "Chosen" {
		t.Errorf("expected id and title kept, got %q %q", doc.ID, doc.Title)
	}
}

func TestSeed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seeded, err := store.Seed(ctx, s, 5, rand.New(rand.NewPCG(5, 6)))
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	docs, _ := s.ListDocuments(ctx)
	if len(seeded) != 5 || len(docs) != 5 {
		t.Errorf("expected 5 documents, got %d seeded and %d stored", len(seeded), len(docs))
	}
}
