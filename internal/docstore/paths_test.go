package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestLookupAssignRemove(t *testing.T) {
	doc := bson.M{"profile": bson.M{"bio": "hi"}, "history": []any{bson.M{"ip": "1.1.1.1"}}}

	value, ok := Lookup(doc, "profile.bio")
	require.True(t, ok)
	require.Equal(t, "hi", value)

	value, ok = Lookup(doc, "history.0.ip")
	require.True(t, ok)
	require.Equal(t, "1.1.1.1", value)

	_, ok = Lookup(doc, "history.3.ip")
	require.False(t, ok)

	Assign(doc, "social.twitter", "https://twitter.com/jane")
	value, ok = Lookup(doc, "social.twitter")
	require.True(t, ok)
	require.Equal(t, "https://twitter.com/jane", value)

	Remove(doc, "profile.bio")
	_, ok = Lookup(doc, "profile.bio")
	require.False(t, ok)

	Remove(doc, "social")
	_, ok = doc["social"]
	require.False(t, ok)
}

func TestNormalizeConvertsDriverShapes(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := bson.M{
		"nested": bson.D{{Key: "at", Value: primitive.NewDateTimeFromTime(when)}},
		"list":   bson.A{bson.D{{Key: "x", Value: 1}}},
	}

	doc := NormalizeDocument(raw)

	nested, ok := doc["nested"].(bson.M)
	require.True(t, ok)
	require.Equal(t, when, nested["at"])

	list, ok := doc["list"].([]any)
	require.True(t, ok)
	require.IsType(t, bson.M{}, list[0])
}

func TestCloneIsDeep(t *testing.T) {
	original := bson.M{"address": bson.M{"city": "Porto"}}
	copied := Clone(original)

	Assign(copied, "address.city", "Faro")

	value, _ := Lookup(original, "address.city")
	require.Equal(t, "Porto", value)
}
