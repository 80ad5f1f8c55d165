package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/database/testutil"
	"github.com/charlesng35/estatehub/internal/docstore"
	"github.com/charlesng35/estatehub/internal/schema"
	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newRepository(t *testing.T) *Repository {
	t.Helper()
	store, err := docstore.NewSQLStore(context.Background(), testutil.MustOpenTestDB(t))
	require.NoError(t, err)

	clock := func() time.Time { return fixedNow }
	reg := schema.NewRegistry(store, schema.WithClock(clock), schema.WithLogger(zap.NewNop()))
	repo, err := Register(reg, Deps{Now: clock, Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NoError(t, reg.SyncIndexes(context.Background()))
	return repo
}

func listing(owner primitive.ObjectID, overrides bson.M) bson.M {
	values := bson.M{
		"title":        "Sunny two bedroom flat",
		"owner":        owner,
		"price":        "250000",
		"listingType":  "sale",
		"propertyType": "apartment",
		"bedrooms":     2,
		"area":         bson.M{"size": 1000},
		"address":      bson.M{"city": "Lisbon", "country": "Portugal"},
		"features":     []any{"balcony", "elevator"},
	}
	for key, value := range overrides {
		values[key] = value
	}
	return values
}

func TestRegisterCompilesDeclaration(t *testing.T) {
	repo := newRepository(t)
	m := repo.Model()

	assert.Equal(t, "listings", m.Collection())
	assert.True(t, m.HasMethod(MethodPublish))
	assert.True(t, m.HasStatic(StaticFindByOwner))
	assert.True(t, m.HasStatic(StaticSearchListings))

	names := make([]string, 0, len(m.Indexes()))
	for _, index := range m.Indexes() {
		names = append(names, index.IndexName())
	}
	assert.Contains(t, names, "status_1")
	assert.Contains(t, names, "address.city_1_price_-1")
	assert.Contains(t, names, "owner_status")
}

func TestCreateAppliesDeclaredRules(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	owner := primitive.NewObjectID()

	doc, err := repo.Create(ctx, listing(owner, bson.M{"currency": "eur"}))
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, doc.String("status"))
	assert.Equal(t, "EUR", doc.String("currency"))
	assert.Equal(t, "sqft", doc.String("area.unit"))
	assert.IsType(t, primitive.Decimal128{}, doc.Get("price"))
	assert.Equal(t, 250.0, doc.Get(VirtualPricePerSqFt))
	assert.Equal(t, float64(0), doc.Float("views"))

	_, err = repo.Create(ctx, bson.M{
		"title":        "Tiny",
		"price":        -5,
		"listingType":  "swap",
		"propertyType": "castle",
		"images":       []any{bson.M{"url": "ftp://example.com/a.png"}},
		"contactEmail": "nope",
	})
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{
		"address.city", "contactEmail", "images.0.url", "listingType", "owner", "price", "propertyType", "title",
	}, verr.Paths())
	assert.Equal(t, "Title must be at least 5 characters", verr.Errors["title"].Message)
	assert.Equal(t, "Price cannot be negative", verr.Errors["price"].Message)
	assert.Equal(t, "Listing type must be sale or rent", verr.Errors["listingType"].Message)
	assert.Equal(t, "City is required", verr.Errors["address.city"].Message)
}

func TestPublish(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	doc, err := repo.Create(ctx, listing(primitive.NewObjectID(), nil))
	require.NoError(t, err)
	_, ok := doc.Time("publishedAt")
	assert.False(t, ok)

	_, err = doc.Call(ctx, MethodPublish)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, doc.String("status"))
	published, ok := doc.Time("publishedAt")
	require.True(t, ok)
	assert.Equal(t, fixedNow, published)

	err = repo.Publish(ctx, doc)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	require.NoError(t, doc.Set("status", StatusArchived))
	require.NoError(t, doc.Save(ctx))
	err = repo.Publish(ctx, doc)
	assert.Equal(t, "Listing cannot be published from archived", apperrors.FromError(err).Message)
}

func TestFindByOwner(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	owner, other := primitive.NewObjectID(), primitive.NewObjectID()

	for _, o := range []primitive.ObjectID{owner, owner, other} {
		_, err := repo.Create(ctx, listing(o, nil))
		require.NoError(t, err)
	}

	docs, err := repo.FindByOwner(ctx, owner.Hex())
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = repo.FindByOwner(ctx, "bogus")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestSearchOnlyReturnsPublishedMatches(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	owner := primitive.NewObjectID()

	fixtures := []bson.M{
		{"title": "Riverside loft with view", "price": "480000", "bedrooms": 1},
		{"title": "Family house near park", "price": "650000", "bedrooms": 4, "propertyType": "house"},
		{"title": "Central studio apartment", "price": "190000", "bedrooms": 0, "address": bson.M{"city": "Porto"}},
		{"title": "Draft listing in Lisbon", "price": "300000"},
	}
	for i, overrides := range fixtures {
		doc, err := repo.Create(ctx, listing(owner, overrides))
		require.NoError(t, err)
		if i < 3 {
			require.NoError(t, repo.Publish(ctx, doc))
		}
	}

	titles := func(docs []*schema.Document) []string {
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.String("title"))
		}
		return out
	}

	all, err := repo.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Central studio apartment", "Riverside loft with view", "Family house near park"}, titles(all))

	lisbon, err := repo.Search(ctx, SearchFilter{City: "lisbon", MinPrice: 400000})
	require.NoError(t, err)
	assert.Equal(t, []string{"Riverside loft with view", "Family house near park"}, titles(lisbon))

	big, err := repo.Search(ctx, SearchFilter{MinBedrooms: 2, MaxPrice: 700000})
	require.NoError(t, err)
	assert.Equal(t, []string{"Family house near park"}, titles(big))

	text, err := repo.Search(ctx, SearchFilter{Text: "ELEVATOR", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Central studio apartment"}, titles(text))

	result, err := repo.Model().Call(ctx, StaticSearchListings, SearchFilter{PropertyType: "house"})
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestPricePerSqFt(t *testing.T) {
	repo := newRepository(t)
	doc, err := repo.Model().New(bson.M{"price": "100000", "area": bson.M{"size": 100, "unit": "sqm"}})
	require.NoError(t, err)
	assert.Equal(t, 92.9, doc.Get(VirtualPricePerSqFt))

	empty, err := repo.Model().New(bson.M{"price": "100000"})
	require.NoError(t, err)
	assert.Nil(t, empty.Get(VirtualPricePerSqFt))
}

func TestDeclarationIsCopied(t *testing.T) {
	raw := Declaration()
	raw[0] = 'X'
	assert.Equal(t, byte('f'), Declaration()[0])
}
