package accounts

import (
	"context"
	"io"
	"strings"
	"time"
	"unicode"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/monitoring"
	"github.com/charlesng35/estatehub/internal/schema"
	"github.com/charlesng35/estatehub/pkg/crypto"
	"github.com/charlesng35/estatehub/pkg/logger"
)

// ModelName is the entity name accounts are registered under.
const ModelName = "Account"

// Field paths used by the behaviours.
const (
	fieldUsername       = "username"
	fieldEmail          = "email"
	fieldPassword       = "password"
	fieldFirstName      = "firstName"
	fieldLastName       = "lastName"
	fieldPhone          = "phoneNumber"
	fieldStatus         = "accountStatus"
	fieldRole           = "role"
	fieldDeletedAt      = "deletedAt"
	fieldLoginHistory   = "loginHistory"
	fieldFailedAttempts = "security.failedLoginAttempts"
	fieldLockUntil      = "security.lockUntil"
	fieldLastLogin      = "security.lastLogin"
	fieldEmailVerified  = "security.isEmailVerified"
	fieldEmailToken     = "security.emailVerificationToken"
	fieldResetToken     = "security.auth.passwordResetToken"
	fieldResetExpires   = "security.auth.passwordResetExpires"
	fieldSessionTokens  = "security.auth.sessionTokens"
	virtualFullName     = "fullName"
	virtualLockedStatus = "lockedStatus"
	defaultUserAgent    = "unknown"
)

// LockoutPolicy controls the failed login lockout.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Deps are the collaborators of the account behaviours.
type Deps struct {
	Constraints Constraints
	Hasher      crypto.PasswordHasher
	// Random feeds token generation; crypto/rand when nil.
	Random        io.Reader
	Now           func() time.Time
	Lockout       LockoutPolicy
	HistoryLimit  int
	TokenBytes    int
	ResetTokenTTL time.Duration
	Logger        *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Constraints.Username == nil {
		d.Constraints = DefaultConstraints()
	}
	if d.Hasher == nil {
		d.Hasher = crypto.NewBcryptHasher(crypto.DefaultCost)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Lockout.Threshold <= 0 {
		d.Lockout.Threshold = 5
	}
	if d.Lockout.Duration <= 0 {
		d.Lockout.Duration = 15 * time.Minute
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 10
	}
	if d.TokenBytes <= 0 {
		d.TokenBytes = 32
	}
	if d.ResetTokenTTL <= 0 {
		d.ResetTokenTTL = time.Hour
	}
	if d.Logger == nil {
		d.Logger = logger.WithModule("accounts")
	}
	return d
}

// behaviours carries the dependencies shared by hooks, methods and statics.
type behaviours struct {
	deps Deps
	c    Constraints
	log  *zap.Logger
}

func newBehaviours(deps Deps) *behaviours {
	deps = deps.withDefaults()
	return &behaviours{deps: deps, c: deps.Constraints, log: deps.Logger}
}

func (b *behaviours) now() time.Time {
	return b.deps.Now().UTC()
}

// ModelConfig builds the account model configuration.
func ModelConfig(deps Deps) *schema.ModelConfig {
	return newBehaviours(deps).modelConfig()
}

func (b *behaviours) modelConfig() *schema.ModelConfig {
	c, msg := b.c, b.c.Messages
	name := func(required string) *schema.FieldSpec {
		return &schema.FieldSpec{
			Type: schema.String, Required: true, RequiredMessage: required, Trim: true,
			MinLength: schema.Int(c.NameMinLength), MinLengthMessage: msg.NameLength,
			MaxLength: schema.Int(c.NameMaxLength), MaxLengthMessage: msg.NameLength,
		}
	}
	social := func() *schema.FieldSpec {
		return &schema.FieldSpec{Type: schema.String, Trim: true, Match: c.SocialURL, MatchMessage: msg.SocialURL}
	}
	hidden := func(tag schema.TypeTag) *schema.FieldSpec {
		return &schema.FieldSpec{Type: tag, Hidden: true}
	}

	cfg := &schema.ModelConfig{
		Fields: map[string]*schema.FieldSpec{
			fieldUsername: {
				Type: schema.String, Required: true, RequiredMessage: msg.UsernameRequired,
				Unique: true, Trim: true,
				MinLength: schema.Int(c.UsernameMinLength), MinLengthMessage: msg.UsernameLength,
				MaxLength: schema.Int(c.UsernameMaxLength), MaxLengthMessage: msg.UsernameLength,
				Match: c.Username, MatchMessage: msg.UsernamePattern,
			},
			fieldEmail: {
				Type: schema.String, Required: true, RequiredMessage: msg.EmailRequired,
				Unique: true, Trim: true, Lowercase: true,
				Match: c.Email, MatchMessage: msg.EmailPattern,
			},
			fieldPassword: {
				Type: schema.String, Required: true, RequiredMessage: msg.PasswordRequired, Hidden: true,
				MinLength: schema.Int(c.PasswordMinLength), MinLengthMessage: msg.PasswordLength,
				Validate: func(v any) bool {
					s, _ := v.(string)
					return c.PasswordStrength == nil || c.PasswordStrength(s)
				},
				ValidateMessage: msg.PasswordStrength,
			},
			fieldFirstName: name(msg.FirstNameRequired),
			fieldLastName:  name(msg.LastNameRequired),
			"avatar": {
				Type: schema.String, Trim: true, Default: c.DefaultAvatar,
				Match: c.ImageURL, MatchMessage: msg.ImageURL,
			},
			fieldPhone: {
				Type: schema.String, Unique: true, Sparse: true, Trim: true,
				Match: c.Phone, MatchMessage: msg.PhonePattern,
			},
			"address": schema.Nested(map[string]*schema.FieldSpec{
				"street":  {Type: schema.String, Trim: true},
				"city":    {Type: schema.String, Trim: true},
				"state":   {Type: schema.String, Trim: true},
				"country": {Type: schema.String, Trim: true},
				"zipCode": {Type: schema.String, Trim: true},
			}),
			"socialMedia": schema.Nested(map[string]*schema.FieldSpec{
				"facebook":  social(),
				"twitter":   social(),
				"linkedin":  social(),
				"instagram": social(),
			}),
			fieldStatus: {
				Type: schema.String, Enum: statusNames(), EnumMessage: msg.Status,
				Default: string(StatusPending), Index: true,
			},
			fieldRole: {
				Type: schema.String, Enum: roleNames(), EnumMessage: msg.Role,
				Default: string(RoleUser),
			},
			"security": schema.Nested(map[string]*schema.FieldSpec{
				"failedLoginAttempts":    {Type: schema.Number, Min: schema.Float(0), Default: 0},
				"lockUntil":              schema.Field(schema.Date),
				"lastLogin":              schema.Field(schema.Date),
				"isEmailVerified":        {Type: schema.Boolean, Default: false},
				"emailVerificationToken": hidden(schema.String),
				"auth": schema.Nested(map[string]*schema.FieldSpec{
					"sessionTokens":        {Of: schema.Field(schema.String), Hidden: true},
					"passwordResetToken":   hidden(schema.String),
					"passwordResetExpires": hidden(schema.Date),
				}),
			}),
			fieldLoginHistory: schema.ArrayOf(schema.Nested(map[string]*schema.FieldSpec{
				"ipAddress": {
					Type: schema.String, Required: true, Trim: true,
					Validate: c.validIP, ValidateMessage: msg.IPAddress,
				},
				"loginAt":   {Type: schema.Date, Default: func() any { return b.now() }},
				"success":   {Type: schema.Boolean, Default: false},
				"userAgent": {Type: schema.String, Default: defaultUserAgent},
			})),
			fieldDeletedAt: schema.Field(schema.Date),
		},
		Options: schema.ModelOptions{
			SchemaOptions: &schema.SchemaOptions{
				Timestamps: true,
				ToJSON:     schema.ToJSONOptions{Virtuals: true},
			},
			Indexes: []schema.IndexDeclaration{
				{Fields: bson.D{{Key: fieldStatus, Value: 1}, {Key: "createdAt", Value: -1}}},
				{Fields: bson.D{{Key: fieldRole, Value: 1}, {Key: fieldStatus, Value: 1}}},
			},
		},
		Virtuals: map[string]schema.Virtual{
			virtualFullName: {
				Get: func(d *schema.Document) any {
					return strings.TrimSpace(d.String(fieldFirstName) + " " + d.String(fieldLastName))
				},
				Set: func(d *schema.Document, value any) error {
					first, last, _ := strings.Cut(strings.TrimSpace(toString(value)), " ")
					if err := d.Set(fieldFirstName, first); err != nil {
						return err
					}
					return d.Set(fieldLastName, last)
				},
			},
			virtualLockedStatus: {
				Get: func(d *schema.Document) any { return b.isLocked(d) },
			},
		},
		Methods: b.methods(),
		Statics: b.statics(),
	}

	cfg.Pre(schema.EventSave, b.preSave)
	cfg.Pre(schema.EventFind, b.preFind)
	cfg.Post(schema.EventSave, b.postSave)
	return cfg
}

// preSave hashes a changed password and normalises identity fields.
func (b *behaviours) preSave(ctx context.Context, hc *schema.HookContext) error {
	d := hc.Document

	if d.IsModified(fieldPassword) {
		if plain := d.String(fieldPassword); plain != "" {
			hashed, err := b.deps.Hasher.Hash(ctx, plain)
			if err != nil {
				return err
			}
			if err := d.Set(fieldPassword, hashed); err != nil {
				return err
			}
		}
	}

	if email, ok := d.Get(fieldEmail).(string); ok {
		if err := d.Set(fieldEmail, strings.ToLower(strings.TrimSpace(email))); err != nil {
			return err
		}
	}
	for _, path := range []string{fieldFirstName, fieldLastName} {
		if value, ok := d.Get(path).(string); ok {
			if err := d.Set(path, titleCase(strings.TrimSpace(value))); err != nil {
				return err
			}
		}
	}
	if phone, ok := d.Get(fieldPhone).(string); ok && phone != "" {
		if err := d.Set(fieldPhone, strings.TrimPrefix(phone, "+")); err != nil {
			return err
		}
	}
	return nil
}

// preFind limits unscoped reads to active accounts.
func (b *behaviours) preFind(_ context.Context, hc *schema.HookContext) error {
	if !hc.Query.Constrains(fieldStatus) {
		hc.Query.Where(fieldStatus, string(StatusActive))
	}
	return nil
}

func (b *behaviours) postSave(_ context.Context, hc *schema.HookContext) error {
	d := hc.Document
	b.log.Debug("account saved",
		zap.String("id", d.ID().Hex()),
		zap.String("username", d.String(fieldUsername)),
		zap.String("status", d.String(fieldStatus)),
	)
	return nil
}

func (b *behaviours) isLocked(d *schema.Document) bool {
	until, ok := d.Time(fieldLockUntil)
	return ok && until.After(b.now())
}

func (b *behaviours) transition(ctx context.Context, d *schema.Document, to Status) error {
	from := Status(d.String(fieldStatus))
	if err := checkTransition(from, to); err != nil {
		return err
	}
	if err := d.Set(fieldStatus, string(to)); err != nil {
		return err
	}
	if to == StatusDeactivated {
		if err := d.Set(fieldDeletedAt, b.now()); err != nil {
			return err
		}
	}
	if err := d.Save(ctx); err != nil {
		return err
	}
	monitoring.RecordStatusTransition(string(from), string(to))
	b.log.Info("account status changed",
		zap.String("id", d.ID().Hex()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// titleCase upper cases the first letter of every whitespace separated word
// and lower cases the rest.
func titleCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	start := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			start = true
			sb.WriteRune(r)
		case start:
			sb.WriteRune(unicode.ToUpper(r))
			start = false
		default:
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
