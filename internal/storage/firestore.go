package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	_ Store   = (*FirestoreStore)(nil)
	_ Sweeper = (*FirestoreStore)(nil)
)

// kvDoc is the document stored per key. ExpiresAt is omitted for entries
// without a TTL so that the sweep query never matches them.
type kvDoc struct {
	Key       string     `firestore:"key"`
	Value     []byte     `firestore:"value"`
	ExpiresAt *time.Time `firestore:"expires_at,omitempty"`
}

func (d *kvDoc) expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// FirestoreStore keeps entries as documents in one collection.
// Document ids are the path-escaped keys.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreStore creates a Firestore-backed store
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, opts ...option.ClientOption) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStore{client: client, collection: collection, now: time.Now}, nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(url.PathEscape(key))
}

func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get %s: %w", key, err)
	}

	var d kvDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	if d.expired(s.now()) {
		return nil, ErrNotFound
	}
	return d.Value, nil
}

func (s *FirestoreStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	d := kvDoc{Key: key, Value: value}
	if exp := expiry(s.now(), ttl); !exp.IsZero() {
		d.ExpiresAt = &exp
	}
	if _, err := s.doc(key).Set(ctx, d); err != nil {
		return fmt.Errorf("firestore set %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	_, err := s.doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore delete %s: %w", key, err)
	}
	return nil
}

// Take reads and deletes inside a transaction so concurrent takers
// can't both observe the entry
func (s *FirestoreStore) Take(ctx context.Context, key string) (bool, error) {
	ref := s.doc(key)
	var taken bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		taken = false
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var d kvDoc
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		taken = !d.expired(s.now())
		return tx.Delete(ref)
	})
	if err != nil {
		return false, fmt.Errorf("firestore take %s: %w", key, err)
	}
	return taken, nil
}

func (s *FirestoreStore) Sweep(ctx context.Context) (int, error) {
	iter := s.client.Collection(s.collection).Where("expires_at", "<=", s.now()).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("error iterating expired documents: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
			return count, fmt.Errorf("deleting expired document %s: %w", snap.Ref.ID, err)
		}
		count++
	}
	return count, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
