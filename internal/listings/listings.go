// Package listings declares the property listing model. The schema lives in
// listing.yaml and is compiled at startup; Go code adds the behaviours.
package listings

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/schema"
	apperrors "github.com/charlesng35/estatehub/pkg/errors"
	"github.com/charlesng35/estatehub/pkg/logger"
)

// ModelName is the entity name listings are registered under.
const ModelName = "Listing"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Behaviour names registered on the listing model.
const (
	MethodPublish        = "publish"
	StaticFindByOwner    = "findByOwner"
	StaticSearchListings = "searchListings"
	VirtualPricePerSqFt  = "pricePerSqFt"
)

//go:embed listing.yaml
var declaration []byte

// Declaration returns the raw YAML declaration.
func Declaration() []byte {
	out := make([]byte, len(declaration))
	copy(out, declaration)
	return out
}

// Deps are the collaborators of the listing behaviours.
type Deps struct {
	Now    func() time.Time
	Logger *zap.Logger
}

type behaviours struct {
	now func() time.Time
	log *zap.Logger
}

func newBehaviours(deps Deps) *behaviours {
	b := &behaviours{now: deps.Now, log: deps.Logger}
	if b.now == nil {
		b.now = time.Now
	}
	if b.log == nil {
		b.log = logger.WithModule("listings")
	}
	return b
}

// Extend returns the hook that attaches the Go side behaviours to a decoded
// declaration.
func Extend(deps Deps) func(cfg *schema.ModelConfig) {
	return newBehaviours(deps).extend
}

func (b *behaviours) extend(cfg *schema.ModelConfig) {
	if cfg.Virtuals == nil {
		cfg.Virtuals = map[string]schema.Virtual{}
	}
	cfg.Virtuals[VirtualPricePerSqFt] = schema.Virtual{Get: pricePerSqFt}

	if cfg.Methods == nil {
		cfg.Methods = map[string]schema.MethodFunc{}
	}
	cfg.Methods[MethodPublish] = func(ctx context.Context, d *schema.Document, _ ...any) (any, error) {
		return nil, b.publish(ctx, d)
	}

	if cfg.Statics == nil {
		cfg.Statics = map[string]schema.StaticFunc{}
	}
	cfg.Statics[StaticFindByOwner] = func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("listings: %s expects an owner id", StaticFindByOwner)
		}
		return findByOwner(ctx, m, args[0])
	}
	cfg.Statics[StaticSearchListings] = func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
		var filter SearchFilter
		if len(args) > 0 {
			f, ok := args[0].(SearchFilter)
			if !ok {
				return nil, fmt.Errorf("listings: %s expects a SearchFilter, got %T", StaticSearchListings, args[0])
			}
			filter = f
		}
		return searchListings(ctx, m, filter)
	}

	cfg.Pre(schema.EventSave, b.stampPublished)
}

// stampPublished records when a listing first becomes visible.
func (b *behaviours) stampPublished(_ context.Context, hc *schema.HookContext) error {
	d := hc.Document
	if d.String("status") != StatusPublished {
		return nil
	}
	if _, ok := d.Time("publishedAt"); ok {
		return nil
	}
	return d.Set("publishedAt", b.now().UTC())
}

func (b *behaviours) publish(ctx context.Context, d *schema.Document) error {
	switch status := d.String("status"); status {
	case StatusDraft:
	case StatusPublished:
		return apperrors.NewConflict("Listing is already published")
	default:
		return apperrors.NewConflict(fmt.Sprintf("Listing cannot be published from %s", status))
	}
	if err := d.Set("status", StatusPublished); err != nil {
		return err
	}
	if err := d.Save(ctx); err != nil {
		return err
	}
	b.log.Info("listing published", zap.String("id", d.ID().Hex()), zap.String("owner", ownerHex(d)))
	return nil
}

// pricePerSqFt divides the price by the floor area in square feet, rounded to
// cents. It is nil when either value is missing.
func pricePerSqFt(d *schema.Document) any {
	size := d.Float("area.size")
	price := d.Float("price")
	if size <= 0 || price <= 0 {
		return nil
	}
	if d.String("area.unit") == "sqm" {
		size *= 10.7639
	}
	return math.Round(price/size*100) / 100
}

func findByOwner(ctx context.Context, m *schema.Model, owner any) ([]*schema.Document, error) {
	id, err := ownerID(owner)
	if err != nil {
		return nil, err
	}
	return m.Find(ctx, bson.M{"owner": id}, schema.SortBy(bson.D{{Key: "createdAt", Value: -1}}))
}

// SearchFilter narrows a listing search. Zero values do not constrain.
type SearchFilter struct {
	Text         string
	City         string
	ListingType  string
	PropertyType string
	MinPrice     float64
	MaxPrice     float64
	MinBedrooms  int
	Skip         int64
	Limit        int64
}

func (f SearchFilter) query() bson.M {
	q := bson.M{"status": StatusPublished}
	if city := strings.TrimSpace(f.City); city != "" {
		q["address.city"] = bson.M{"$regex": "^" + regexp.QuoteMeta(city) + "$", "$options": "i"}
	}
	if f.ListingType != "" {
		q["listingType"] = f.ListingType
	}
	if f.PropertyType != "" {
		q["propertyType"] = f.PropertyType
	}
	price := bson.M{}
	if f.MinPrice > 0 {
		price["$gte"] = f.MinPrice
	}
	if f.MaxPrice > 0 {
		price["$lte"] = f.MaxPrice
	}
	if len(price) > 0 {
		q["price"] = price
	}
	if f.MinBedrooms > 0 {
		q["bedrooms"] = bson.M{"$gte": f.MinBedrooms}
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(text), "$options": "i"}
		q["$or"] = []any{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"features": pattern},
		}
	}
	return q
}

func searchListings(ctx context.Context, m *schema.Model, f SearchFilter) ([]*schema.Document, error) {
	opts := []schema.QueryOption{schema.SortBy(bson.D{{Key: "price", Value: 1}})}
	if f.Skip > 0 {
		opts = append(opts, schema.Skip(f.Skip))
	}
	if f.Limit > 0 {
		opts = append(opts, schema.Limit(f.Limit))
	}
	return m.Find(ctx, f.query(), opts...)
}

func ownerID(owner any) (primitive.ObjectID, error) {
	switch v := owner.(type) {
	case primitive.ObjectID:
		return v, nil
	case string:
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return primitive.NilObjectID, apperrors.NewValidation("Invalid owner id", []apperrors.FieldDetail{
				{Field: "owner", Kind: schema.KindCast, Message: fmt.Sprintf("Cast to ObjectId failed for value %q", v)},
			})
		}
		return id, nil
	default:
		return primitive.NilObjectID, fmt.Errorf("listings: unsupported owner id type %T", owner)
	}
}

func ownerHex(d *schema.Document) string {
	id, _ := d.Get("owner").(primitive.ObjectID)
	return id.Hex()
}
