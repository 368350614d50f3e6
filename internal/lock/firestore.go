package lock

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Compile-time interface satisfaction check.
var _ Locker = (*FirestoreLocker)(nil)

// FirestoreLocker stores the token as a document and takes it over inside a
// transaction once it is older than the staleness window.
type FirestoreLocker struct {
	client     *firestore.Client
	collection string
	id         string
	staleAfter time.Duration
	now        func() time.Time
}

// NewFirestore returns a FirestoreLocker for collection/id.
func NewFirestore(client *firestore.Client, collection, id string, staleAfter time.Duration) *FirestoreLocker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &FirestoreLocker{
		client:     client,
		collection: collection,
		id:         id,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (l *FirestoreLocker) doc() *firestore.DocumentRef {
	return l.client.Collection(l.collection).Doc(l.id)
}

// Acquire succeeds only if the lock document is missing or stale.
func (l *FirestoreLocker) Acquire(ctx context.Context) (bool, error) {
	now := l.now()
	tok := NewToken(now)

	var acquired bool
	err := l.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		acquired = false

		snap, err := tx.Get(l.doc())
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			acquired = true
			return tx.Set(l.doc(), tokenFields(tok))
		}

		created, err := snap.DataAt("createdAt")
		if ts, ok := created.(time.Time); err == nil && ok && now.Sub(ts) <= l.staleAfter {
			return nil
		}
		acquired = true
		return tx.Set(l.doc(), tokenFields(tok))
	})
	if err != nil {
		return false, fmt.Errorf("firestore lock %s/%s: %w", l.collection, l.id, err)
	}
	return acquired, nil
}

// Release deletes the lock document.
func (l *FirestoreLocker) Release(ctx context.Context) error {
	if _, err := l.doc().Delete(ctx); err != nil {
		return fmt.Errorf("firestore unlock %s/%s: %w", l.collection, l.id, err)
	}
	return nil
}

func tokenFields(t Token) map[string]interface{} {
	return map[string]interface{}{
		"pid":       t.PID,
		"host":      t.Host,
		"createdAt": t.CreatedAt,
	}
}
