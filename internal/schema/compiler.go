package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/docstore"
	"github.com/charlesng35/estatehub/internal/monitoring"
	apperrors "github.com/charlesng35/estatehub/pkg/errors"
	"github.com/charlesng35/estatehub/pkg/logger"
	"github.com/charlesng35/estatehub/pkg/validator"
)

// Compiler turns model configurations into models bound to a store.
type Compiler struct {
	store    docstore.Store
	defaults SchemaOptions
	now      func() time.Time
	log      *zap.Logger
}

// CompilerOption customises a Compiler.
type CompilerOption func(*Compiler)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the base logger of compiled models.
func WithLogger(log *zap.Logger) CompilerOption {
	return func(c *Compiler) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSchemaDefaults replaces the options used when a config sets none.
func WithSchemaDefaults(opts SchemaOptions) CompilerOption {
	return func(c *Compiler) {
		c.defaults = opts
	}
}

// NewCompiler builds a compiler writing through store.
func NewCompiler(store docstore.Store, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		store:    store,
		defaults: DefaultSchemaOptions(),
		now:      time.Now,
		log:      logger.WithModule("schema"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile validates cfg and builds the model called name. Nothing is
// returned on failure, so a failed compile leaves no partial model behind.
func (c *Compiler) Compile(name string, cfg *ModelConfig) (*Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ErrInvalidModelName.WithInternal(fmt.Errorf("schema: empty model name"))
	}
	if cfg == nil {
		return nil, apperrors.ErrInvalidConfigStructure.WithInternal(fmt.Errorf("schema: %s: config is nil", name))
	}
	if cfg.Fields == nil {
		return nil, apperrors.ErrMissingFieldsObject.WithInternal(fmt.Errorf("schema: %s: fields are missing", name))
	}

	invalid := func(err error) error {
		return apperrors.ErrInvalidConfigStructure.
			WithMessage(fmt.Sprintf("Invalid configuration for model %s", name)).
			WithInternal(fmt.Errorf("schema: %s: %w", name, err))
	}

	options := c.defaults
	if cfg.Options.SchemaOptions != nil {
		options = *cfg.Options.SchemaOptions
	}

	s, err := buildSchema(cfg.Fields, "")
	if err != nil {
		return nil, invalid(err)
	}
	s.addImplicit(docstore.IDField, ObjectID)
	if options.Timestamps {
		s.addImplicit(createdAtField, Date)
		s.addImplicit(updatedAtField, Date)
	}

	hooks, err := copyHooks(cfg.Hooks)
	if err != nil {
		return nil, invalid(err)
	}

	virtuals := make(map[string]Virtual, len(cfg.Virtuals))
	for vname, v := range cfg.Virtuals {
		if v.Get == nil {
			return nil, invalid(fmt.Errorf("virtual %q has no getter", vname))
		}
		if _, clash := s.fields[vname]; clash {
			return nil, invalid(fmt.Errorf("virtual %q shadows a field", vname))
		}
		virtuals[vname] = v
	}

	methods := make(map[string]MethodFunc, len(cfg.Methods))
	for mname, fn := range cfg.Methods {
		if fn == nil {
			return nil, invalid(fmt.Errorf("method %q is nil", mname))
		}
		methods[mname] = fn
	}
	statics := make(map[string]StaticFunc, len(cfg.Statics))
	for sname, fn := range cfg.Statics {
		if fn == nil {
			return nil, invalid(fmt.Errorf("static %q is nil", sname))
		}
		statics[sname] = fn
	}

	indexes, err := collectIndexes(s, cfg.Options.Indexes)
	if err != nil {
		return nil, invalid(err)
	}

	collection := strings.TrimSpace(options.Collection)
	if collection == "" {
		collection = strings.ToLower(inflection.Plural(name))
	}

	m := &Model{
		name:       name,
		collection: collection,
		schema:     s,
		store:      c.store,
		options:    options,
		hooks:      hooks,
		methods:    methods,
		statics:    statics,
		virtuals:   virtuals,
		indexes:    indexes,
		now:        c.now,
		log:        c.log.With(zap.String("entity", name)),
	}

	monitoring.RecordModelCompiled(name)
	m.log.Debug("model compiled",
		zap.String("collection", collection),
		zap.Int("fields", len(s.names)),
		zap.Int("indexes", len(indexes)),
	)
	return m, nil
}

func copyHooks(in Hooks) (Hooks, error) {
	out := Hooks{Pre: map[Event][]HookFunc{}, Post: map[Event][]HookFunc{}}
	for phase, src := range map[string]map[Event][]HookFunc{"pre": in.Pre, "post": in.Post} {
		dst := out.Pre
		if phase == "post" {
			dst = out.Post
		}
		for event, fns := range src {
			if _, ok := knownEvents[event]; !ok {
				return Hooks{}, fmt.Errorf("unknown %s hook event %q", phase, event)
			}
			for i, fn := range fns {
				if fn == nil {
					return Hooks{}, fmt.Errorf("%s %s hook %d is nil", phase, event, i)
				}
			}
			dst[event] = append([]HookFunc(nil), fns...)
		}
	}
	return out, nil
}

func collectIndexes(s *Schema, decls []IndexDeclaration) ([]docstore.Index, error) {
	indexes := s.fieldIndexes()
	for i, decl := range decls {
		if err := validator.ValidateStruct(decl); err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		keys := make(bson.D, 0, len(decl.Fields))
		for _, key := range decl.Fields {
			if _, _, ok := s.Path(key.Key); !ok {
				return nil, fmt.Errorf("index %d: unknown field %q", i, key.Key)
			}
			dir, ok := indexDirection(key.Value)
			if !ok {
				return nil, fmt.Errorf("index %d: direction of %q must be 1 or -1", i, key.Key)
			}
			keys = append(keys, bson.E{Key: key.Key, Value: dir})
		}
		indexes = append(indexes, docstore.Index{
			Name:   decl.Options.Name,
			Keys:   keys,
			Unique: decl.Options.Unique,
			Sparse: decl.Options.Sparse,
		})
	}

	seen := make(map[string]struct{}, len(indexes))
	out := indexes[:0]
	for _, idx := range indexes {
		name := idx.IndexName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, idx)
	}
	return out, nil
}

func indexDirection(v any) (int, bool) {
	f, ok := number(v)
	switch {
	case !ok:
		return 0, false
	case f == 1:
		return 1, true
	case f == -1:
		return -1, true
	default:
		return 0, false
	}
}

func bsonKeys(path string, dir int) bson.D {
	return bson.D{{Key: path, Value: dir}}
}
