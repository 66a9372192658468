package uploadcache

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "upload_cache"

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store cache entries.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithClock injects a custom clock, primarily for tests.
func WithClock(now func() time.Time) FirestoreOption {
	return func(store *FirestoreStore) {
		if now != nil {
			store.now = now
		}
	}
}

// FirestoreStore implements Store backed by Google Cloud Firestore. Documents
// are keyed by the SHA-256 of the source URL so arbitrary URLs stay within
// document-id constraints.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreStore constructs a Firestore-backed upload cache store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, sourceURL string) (string, bool, error) {
	ref := s.client.Collection(s.collection).Doc(cacheKey(sourceURL))
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, err
	}

	var record firestoreRecord
	if err := snap.DataTo(&record); err != nil {
		return "", false, err
	}
	if record.FileID == "" {
		return "", false, nil
	}
	return record.FileID, true, nil
}

// Put implements Store. Racing writers overwrite each other; the mapping for
// a given URL is stable either way because artwork URLs are content-stable.
func (s *FirestoreStore) Put(ctx context.Context, sourceURL, fileID string) error {
	ref := s.client.Collection(s.collection).Doc(cacheKey(sourceURL))
	record := firestoreRecord{
		SourceURL: sourceURL,
		FileID:    fileID,
		CreatedAt: s.now().UTC(),
	}
	_, err := ref.Set(ctx, record)
	return err
}

type firestoreRecord struct {
	SourceURL string    `firestore:"source_url"`
	FileID    string    `firestore:"file_id"`
	CreatedAt time.Time `firestore:"created_at"`
}
