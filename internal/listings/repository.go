package listings

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/charlesng35/estatehub/internal/schema"
)

// Repository is the typed entry point to the listing model.
type Repository struct {
	model *schema.Model
	b     *behaviours
}

// Register compiles the embedded declaration into reg.
func Register(reg *schema.Registry, deps Deps) (*Repository, error) {
	raw, err := schema.ParseDeclarationYAML(declaration)
	if err != nil {
		return nil, err
	}
	b := newBehaviours(deps)
	model, err := reg.RegisterDeclaration(ModelName, raw, b.extend)
	if err != nil {
		return nil, err
	}
	return &Repository{model: model, b: b}, nil
}

// Model returns the compiled listing model.
func (r *Repository) Model() *schema.Model { return r.model }

// Create stores a draft listing.
func (r *Repository) Create(ctx context.Context, values bson.M) (*schema.Document, error) {
	return r.model.Create(ctx, values)
}

// FindByOwner lists an owner's listings, newest first.
func (r *Repository) FindByOwner(ctx context.Context, owner any) ([]*schema.Document, error) {
	return findByOwner(ctx, r.model, owner)
}

// Search returns published listings matching f, cheapest first.
func (r *Repository) Search(ctx context.Context, f SearchFilter) ([]*schema.Document, error) {
	return searchListings(ctx, r.model, f)
}

// Publish moves a draft listing to published.
func (r *Repository) Publish(ctx context.Context, d *schema.Document) error {
	return r.b.publish(ctx, d)
}
