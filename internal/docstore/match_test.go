package docstore

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMatchOperators(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := bson.M{
		"_id":           id,
		"email":         "jane@example.com",
		"firstName":     "Jane",
		"accountStatus": "active",
		"failedLogins":  int32(3),
		"price":         float64(250000),
		"tags":          []any{"garden", "garage"},
		"address":       bson.M{"city": "Lisbon"},
		"lockUntil":     now,
		"images":        []any{bson.M{"url": "a.jpg"}, bson.M{"url": "b.jpg"}},
	}

	cases := []struct {
		name   string
		filter bson.M
		want   bool
	}{
		{"implicit equality", bson.M{"email": "jane@example.com"}, true},
		{"objectid equality", bson.M{"_id": id}, true},
		{"numeric widths", bson.M{"failedLogins": int64(3)}, true},
		{"nested path", bson.M{"address.city": "Lisbon"}, true},
		{"array element", bson.M{"tags": "garage"}, true},
		{"array of documents", bson.M{"images.url": "b.jpg"}, true},
		{"ne", bson.M{"accountStatus": bson.M{"$ne": "active"}}, false},
		{"in", bson.M{"accountStatus": bson.M{"$in": []string{"pending", "active"}}}, true},
		{"nin", bson.M{"accountStatus": bson.M{"$nin": bson.A{"active"}}}, false},
		{"gte", bson.M{"failedLogins": bson.M{"$gte": 3}}, true},
		{"range", bson.M{"price": bson.M{"$gt": 100000, "$lt": 200000}}, false},
		{"time gt", bson.M{"lockUntil": bson.M{"$gt": now.Add(-time.Minute)}}, true},
		{"exists", bson.M{"deletedAt": bson.M{"$exists": false}}, true},
		{"missing equals nil", bson.M{"deletedAt": nil}, true},
		{"regex options", bson.M{"firstName": bson.M{"$regex": "^ja", "$options": "i"}}, true},
		{"compiled regex", bson.M{"email": regexp.MustCompile(`@example\.org$`)}, false},
		{"or", bson.M{"$or": []bson.M{{"email": "x"}, {"firstName": "Jane"}}}, true},
		{"and", bson.M{"$and": bson.A{bson.M{"email": "jane@example.com"}, bson.M{"accountStatus": "pending"}}}, false},
		{"nor", bson.M{"$nor": []any{bson.M{"accountStatus": "deactivated"}}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := Match(doc, tc.filter)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}
}

func TestMatchRejectsUnknownOperator(t *testing.T) {
	_, err := Match(bson.M{"a": 1}, bson.M{"a": bson.M{"$where": "true"}})
	require.Error(t, err)

	_, err = Match(bson.M{"a": 1}, bson.M{"$text": bson.M{}})
	require.Error(t, err)
}

func TestSortAndWindow(t *testing.T) {
	docs := []bson.M{
		{"name": "b", "price": 2},
		{"name": "a", "price": 3},
		{"name": "c", "price": 1},
	}

	SortDocuments(docs, bson.D{{Key: "price", Value: -1}})
	require.Equal(t, "a", docs[0]["name"])
	require.Equal(t, "c", docs[2]["name"])

	window := Window(docs, FindOptions{Skip: 1, Limit: 1})
	require.Len(t, window, 1)
	require.Equal(t, "b", window[0]["name"])

	require.Nil(t, Window(docs, FindOptions{Skip: 5}))
}

func TestIndexName(t *testing.T) {
	index := Index{Keys: bson.D{{Key: "address.city", Value: 1}, {Key: "price", Value: -1}}}
	require.Equal(t, "address.city_1_price_-1", index.IndexName())
	require.Equal(t, []string{"address.city", "price"}, index.Fields())
	require.Equal(t, []string{"address.city", "price"}, fieldsFromIndexName(index.IndexName()))
	require.Equal(t, []string{"_id"}, fieldsFromIndexName("_id_"))
}
