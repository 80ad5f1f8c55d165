package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/charlesng35/estatehub/internal/database/testutil"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(context.Background(), testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	return store
}

func TestSQLStoreRoundTripsBSONTypes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id := primitive.NewObjectID()
	owner := primitive.NewObjectID()
	price, err := primitive.ParseDecimal128("349999.99")
	require.NoError(t, err)
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, "properties", bson.M{
		"_id":       id,
		"owner":     owner,
		"price":     price,
		"createdAt": created,
		"amenities": []any{"pool", "garden"},
		"address":   bson.M{"city": "Lisbon"},
		"lockUntil": nil,
	}))

	doc, err := store.FindOne(ctx, "properties", bson.M{"_id": id}, FindOptions{})
	require.NoError(t, err)
	require.Equal(t, owner, doc["owner"])
	require.Equal(t, price, doc["price"])
	require.True(t, created.Equal(doc["createdAt"].(time.Time)))
	require.Equal(t, []any{"pool", "garden"}, doc["amenities"])
	require.Equal(t, bson.M{"city": "Lisbon"}, doc["address"])
	require.Contains(t, doc, "lockUntil")
	require.Nil(t, doc["lockUntil"])
}

func TestSQLStoreUpdateFindCountDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids := make([]primitive.ObjectID, 3)
	for i, status := range []string{"active", "pending", "active"} {
		ids[i] = primitive.NewObjectID()
		require.NoError(t, store.Insert(ctx, "accounts", bson.M{
			"_id":           ids[i],
			"accountStatus": status,
			"rank":          i,
			"secret":        "keep-me",
		}))
	}

	count, err := store.Count(ctx, "accounts", bson.M{"accountStatus": "active"})
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	require.NoError(t, store.Update(ctx, "accounts", ids[1], Change{
		Set:   bson.M{"accountStatus": "active", "profile.bio": "hello"},
		Unset: []string{"rank"},
	}))

	doc, err := store.FindOne(ctx, "accounts", bson.M{"_id": ids[1]}, FindOptions{})
	require.NoError(t, err)
	require.Equal(t, "active", doc["accountStatus"])
	require.Equal(t, "keep-me", doc["secret"])
	require.NotContains(t, doc, "rank")
	bio, _ := Lookup(doc, "profile.bio")
	require.Equal(t, "hello", bio)

	docs, err := store.Find(ctx, "accounts", bson.M{"accountStatus": "active"}, FindOptions{
		Sort: bson.D{{Key: "rank", Value: -1}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, ids[2], docs[0]["_id"])

	err = store.Update(ctx, "accounts", primitive.NewObjectID(), Change{Set: bson.M{"x": 1}})
	require.ErrorIs(t, err, ErrNotFound)

	deleted, err := store.DeleteOne(ctx, "accounts", bson.M{"_id": ids[0]})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deleted, err = store.DeleteOne(ctx, "accounts", bson.M{"_id": ids[0]})
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, err = store.FindOne(ctx, "accounts", bson.M{"_id": ids[0]}, FindOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.EnsureIndex(ctx, "accounts", Index{
		Keys:   bson.D{{Key: "email", Value: 1}},
		Unique: true,
	}))
	require.NoError(t, store.EnsureIndex(ctx, "accounts", Index{
		Keys:   bson.D{{Key: "phoneNumber", Value: 1}},
		Unique: true,
		Sparse: true,
	}))

	first := primitive.NewObjectID()
	require.NoError(t, store.Insert(ctx, "accounts", bson.M{"_id": first, "email": "a@example.com"}))
	// Sparse: a second document without a phone number is accepted.
	require.NoError(t, store.Insert(ctx, "accounts", bson.M{"_id": primitive.NewObjectID(), "email": "b@example.com"}))

	err := store.Insert(ctx, "accounts", bson.M{"_id": primitive.NewObjectID(), "email": "a@example.com"})
	require.ErrorIs(t, err, ErrDuplicateKey)

	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, "email_1", dup.Index)
	require.Equal(t, []string{"email"}, dup.Fields)

	count, err := store.Count(ctx, "accounts", nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	// Updating a document may keep its own key.
	require.NoError(t, store.Update(ctx, "accounts", first, Change{Set: bson.M{"email": "a@example.com", "phoneNumber": "351910000000"}}))

	// Deleting releases the key.
	_, err = store.DeleteOne(ctx, "accounts", bson.M{"_id": first})
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, "accounts", bson.M{"_id": primitive.NewObjectID(), "email": "a@example.com"}))
}

func TestSQLStoreEnsureIndexDetectsExistingDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.Insert(ctx, "accounts", bson.M{"_id": primitive.NewObjectID(), "username": "jane"}))
	}

	err := store.EnsureIndex(ctx, "accounts", Index{Keys: bson.D{{Key: "username", Value: 1}}, Unique: true})
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.Empty(t, store.Indexes("accounts"))
}

func TestSQLStoreIndexesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t)

	store, err := NewSQLStore(ctx, db)
	require.NoError(t, err)
	require.NoError(t, store.EnsureIndex(ctx, "accounts", Index{Keys: bson.D{{Key: "email", Value: 1}}, Unique: true}))

	reopened, err := NewSQLStore(ctx, db)
	require.NoError(t, err)
	indexes := reopened.Indexes("accounts")
	require.Len(t, indexes, 1)
	require.Equal(t, "email_1", indexes[0].Name)
	require.True(t, indexes[0].Unique)
}

func TestSQLStoreIncrementIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id := primitive.NewObjectID()
	require.NoError(t, store.Insert(ctx, "accounts", bson.M{"_id": id, "failedLoginAttempts": 0}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "accounts", id, "failedLoginAttempts", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := store.Increment(ctx, "accounts", id, "failedLoginAttempts", 1)
	require.NoError(t, err)
	require.EqualValues(t, 11, doc["failedLoginAttempts"])

	_, err = store.Increment(ctx, "accounts", primitive.NewObjectID(), "failedLoginAttempts", 1)
	require.ErrorIs(t, err, ErrNotFound)
}
