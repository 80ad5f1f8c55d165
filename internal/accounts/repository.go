package accounts

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/charlesng35/estatehub/internal/schema"
)

// Repository is the typed entry point to the account model.
type Repository struct {
	model *schema.Model
	b     *behaviours
}

// Register compiles the account model into reg.
func Register(reg *schema.Registry, deps Deps) (*Repository, error) {
	b := newBehaviours(deps)
	model, err := reg.Register(ModelName, b.modelConfig())
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return &Repository{model: model, b: b}, nil
}

// Model returns the compiled account model.
func (r *Repository) Model() *schema.Model { return r.model }

func (r *Repository) wrap(doc *schema.Document) *Account {
	return &Account{doc: doc, b: r.b}
}

func (r *Repository) wrapAll(docs []*schema.Document) []*Account {
	out := make([]*Account, 0, len(docs))
	for _, doc := range docs {
		out = append(out, r.wrap(doc))
	}
	return out
}

// Create validates, normalises and stores a new account.
func (r *Repository) Create(ctx context.Context, values bson.M) (*Account, error) {
	doc, err := r.model.Create(ctx, values)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// FindByEmail returns the active account with email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	doc, err := r.b.findActiveBy(ctx, r.model, fieldEmail, email)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// FindByUsername returns the active account with username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	doc, err := r.b.findActiveBy(ctx, r.model, fieldUsername, username)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// FindByIDActiveOnly returns the account with id when it is active.
func (r *Repository) FindByIDActiveOnly(ctx context.Context, id any) (*Account, error) {
	doc, err := r.b.findByIDActiveOnly(ctx, r.model, id)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// FindByEmailOrUsername resolves a login identifier.
func (r *Repository) FindByEmailOrUsername(ctx context.Context, identifier string) (*Account, error) {
	doc, err := r.b.findByEmailOrUsername(ctx, r.model, identifier)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// Search finds active accounts whose names or email contain term.
func (r *Repository) Search(ctx context.Context, term string) ([]*Account, error) {
	docs, err := r.b.searchUser(ctx, r.model, term)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrapAll(docs), nil
}

// LockUserByID suspends an active account.
func (r *Repository) LockUserByID(ctx context.Context, id any) (*Account, error) {
	doc, err := r.b.lockUserByID(ctx, r.model, id)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// ActivateUserByID activates a pending account.
func (r *Repository) ActivateUserByID(ctx context.Context, id any) (*Account, error) {
	doc, err := r.b.activateUserByID(ctx, r.model, id)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}

// SoftDelete deactivates the account matching filter.
func (r *Repository) SoftDelete(ctx context.Context, filter bson.M) (*Account, error) {
	doc, err := r.b.softDelete(ctx, r.model, filter)
	if err != nil {
		return nil, schema.TranslateError(err)
	}
	return r.wrap(doc), nil
}
