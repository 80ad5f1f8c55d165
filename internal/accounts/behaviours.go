package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/charlesng35/estatehub/internal/monitoring"
	"github.com/charlesng35/estatehub/internal/schema"
	"github.com/charlesng35/estatehub/pkg/crypto"
	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

// Method names registered on the account model.
const (
	MethodIncrementFailedLogins      = "incrementFailedLogins"
	MethodIsLocked                   = "isLocked"
	MethodResetFailedLogins          = "resetFailedLogins"
	MethodComparePassword            = "comparePassword"
	MethodGenerateEmailToken         = "generateEmailVerificationToken"
	MethodVerifyEmail                = "verifyEmail"
	MethodAddLoginHistory            = "addLoginHistory"
	MethodGeneratePasswordResetToken = "generatePasswordResetToken"
)

// Static names registered on the account model.
const (
	StaticFindByEmail           = "findByEmail"
	StaticFindByUsername        = "findByUsername"
	StaticFindByIDActiveOnly    = "findByIdActiveOnly"
	StaticFindByEmailOrUsername = "findByEmailOrUsername"
	StaticSearchUser            = "searchUser"
	StaticLockUserByID          = "lockUserById"
	StaticActivateUserByID      = "activateUserById"
	StaticSoftDelete            = "softDelete"
)

func (b *behaviours) methods() map[string]schema.MethodFunc {
	methods := map[string]schema.MethodFunc{
		MethodIncrementFailedLogins: func(ctx context.Context, d *schema.Document, _ ...any) (any, error) {
			return nil, b.incrementFailedLogins(ctx, d)
		},
		MethodIsLocked: func(_ context.Context, d *schema.Document, _ ...any) (any, error) {
			return b.isLocked(d), nil
		},
		MethodResetFailedLogins: func(ctx context.Context, d *schema.Document, _ ...any) (any, error) {
			return nil, b.resetFailedLogins(ctx, d)
		},
		MethodComparePassword: func(ctx context.Context, d *schema.Document, args ...any) (any, error) {
			candidate, err := stringArg(MethodComparePassword, args, 0)
			if err != nil {
				return false, err
			}
			return b.comparePassword(ctx, d, candidate)
		},
		MethodGenerateEmailToken: func(ctx context.Context, d *schema.Document, _ ...any) (any, error) {
			return b.generateEmailVerificationToken(ctx, d)
		},
		MethodVerifyEmail: func(ctx context.Context, d *schema.Document, args ...any) (any, error) {
			token, err := stringArg(MethodVerifyEmail, args, 0)
			if err != nil {
				return nil, err
			}
			return nil, b.verifyEmail(ctx, d, token)
		},
		MethodAddLoginHistory: func(ctx context.Context, d *schema.Document, args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("accounts: %s expects a login entry", MethodAddLoginHistory)
			}
			entry, ok := args[0].(LoginEntry)
			if !ok {
				return nil, fmt.Errorf("accounts: %s expects a LoginEntry, got %T", MethodAddLoginHistory, args[0])
			}
			return nil, b.addLoginHistory(ctx, d, entry)
		},
		MethodGeneratePasswordResetToken: func(ctx context.Context, d *schema.Document, _ ...any) (any, error) {
			return b.generatePasswordResetToken(ctx, d)
		},
	}
	for name, fn := range methods {
		methods[name] = translateMethod(fn)
	}
	return methods
}

func (b *behaviours) statics() map[string]schema.StaticFunc {
	byField := func(name, path string) schema.StaticFunc {
		return func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
			value, err := stringArg(name, args, 0)
			if err != nil {
				return nil, err
			}
			return b.findActiveBy(ctx, m, path, value)
		}
	}
	byID := func(name string, fn func(context.Context, *schema.Model, any) (*schema.Document, error)) schema.StaticFunc {
		return func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("accounts: %s expects an id", name)
			}
			return fn(ctx, m, args[0])
		}
	}
	statics := map[string]schema.StaticFunc{
		StaticFindByEmail:        byField(StaticFindByEmail, fieldEmail),
		StaticFindByUsername:     byField(StaticFindByUsername, fieldUsername),
		StaticFindByIDActiveOnly: byID(StaticFindByIDActiveOnly, b.findByIDActiveOnly),
		StaticFindByEmailOrUsername: func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
			identifier, err := stringArg(StaticFindByEmailOrUsername, args, 0)
			if err != nil {
				return nil, err
			}
			return b.findByEmailOrUsername(ctx, m, identifier)
		},
		StaticSearchUser: func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
			term, err := stringArg(StaticSearchUser, args, 0)
			if err != nil {
				return nil, err
			}
			return b.searchUser(ctx, m, term)
		},
		StaticLockUserByID:     byID(StaticLockUserByID, b.lockUserByID),
		StaticActivateUserByID: byID(StaticActivateUserByID, b.activateUserByID),
		StaticSoftDelete: func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("accounts: %s expects a filter", StaticSoftDelete)
			}
			filter, ok := args[0].(bson.M)
			if !ok {
				return nil, fmt.Errorf("accounts: %s expects a bson.M filter, got %T", StaticSoftDelete, args[0])
			}
			return b.softDelete(ctx, m, filter)
		},
	}
	for name, fn := range statics {
		statics[name] = translateStatic(fn)
	}
	return statics
}

// translateMethod and translateStatic map failures onto the shared error kinds.
func translateMethod(fn schema.MethodFunc) schema.MethodFunc {
	return func(ctx context.Context, d *schema.Document, args ...any) (any, error) {
		out, err := fn(ctx, d, args...)
		return out, schema.TranslateError(err)
	}
}

func translateStatic(fn schema.StaticFunc) schema.StaticFunc {
	return func(ctx context.Context, m *schema.Model, args ...any) (any, error) {
		out, err := fn(ctx, m, args...)
		return out, schema.TranslateError(err)
	}
}

// incrementFailedLogins bumps the counter atomically and locks the account
// once the threshold is reached.
func (b *behaviours) incrementFailedLogins(ctx context.Context, d *schema.Document) error {
	m := d.Model()
	fresh, err := m.Increment(ctx, d.ID(), fieldFailedAttempts, 1)
	if err != nil {
		return err
	}
	attempts := fresh.Float(fieldFailedAttempts)
	if err := d.SetPersisted(fieldFailedAttempts, attempts); err != nil {
		return err
	}

	if int(attempts) < b.deps.Lockout.Threshold || b.isLocked(d) {
		return nil
	}
	if err := d.Set(fieldLockUntil, b.now().Add(b.deps.Lockout.Duration)); err != nil {
		return err
	}
	if err := d.Save(ctx); err != nil {
		return err
	}
	monitoring.RecordAccountLockout()
	b.log.Warn("account locked after failed logins",
		zap.String("id", d.ID().Hex()),
		zap.Float64("attempts", attempts),
	)
	return nil
}

func (b *behaviours) resetFailedLogins(ctx context.Context, d *schema.Document) error {
	if err := clearLockout(d); err != nil {
		return err
	}
	return d.Save(ctx)
}

// clearLockout zeroes the counter and drops lockUntil. Both paths are written
// even when the loaded copy already agrees with them.
func clearLockout(d *schema.Document) error {
	if err := d.Set(fieldFailedAttempts, 0); err != nil {
		return err
	}
	d.MarkModified(fieldFailedAttempts)
	d.Unset(fieldLockUntil)
	d.MarkModified(fieldLockUntil)
	return nil
}

// comparePassword checks candidate against the stored hash. The hash is
// reloaded because it is hidden from default projections.
func (b *behaviours) comparePassword(ctx context.Context, d *schema.Document, candidate string) (bool, error) {
	stored, err := d.Model().FindOne(ctx, bson.M{
		"_id":       d.ID(),
		fieldStatus: bson.M{"$in": allStatuses()},
	}, schema.Select("+"+fieldPassword))
	if err != nil {
		b.log.Error("password comparison failed", zap.String("id", d.ID().Hex()), zap.Error(err))
		return false, apperrors.ErrInternalServer.WithMessage("Password comparison failed").WithInternal(err)
	}

	err = b.deps.Hasher.Verify(ctx, candidate, stored.String(fieldPassword))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, crypto.ErrPasswordMismatch):
		return false, nil
	default:
		b.log.Error("password comparison failed", zap.String("id", d.ID().Hex()), zap.Error(err))
		return false, apperrors.ErrInternalServer.WithMessage("Password comparison failed").WithInternal(err)
	}
}

func (b *behaviours) generateEmailVerificationToken(ctx context.Context, d *schema.Document) (string, error) {
	token, err := crypto.GenerateHexToken(b.deps.Random, b.deps.TokenBytes)
	if err != nil {
		return "", err
	}
	if err := d.Set(fieldEmailToken, token); err != nil {
		return "", err
	}
	if err := d.Save(ctx); err != nil {
		return "", err
	}
	return token, nil
}

func (b *behaviours) verifyEmail(ctx context.Context, d *schema.Document, token string) error {
	stored := d.String(fieldEmailToken)
	if !d.Selected(fieldEmailToken) || stored == "" {
		reloaded, err := d.Model().FindOne(ctx, bson.M{
			"_id":       d.ID(),
			fieldStatus: bson.M{"$in": allStatuses()},
		}, schema.Select("+"+fieldEmailToken))
		if err != nil {
			return err
		}
		stored = reloaded.String(fieldEmailToken)
	}
	if token == "" || stored == "" || token != stored {
		return apperrors.ErrInvalidToken.WithMessage("Invalid or expired email verification token")
	}

	if err := d.Set(fieldEmailVerified, true); err != nil {
		return err
	}
	d.Unset(fieldEmailToken)
	return d.Save(ctx)
}

// addLoginHistory prepends entry and keeps the newest HistoryLimit entries.
func (b *behaviours) addLoginHistory(ctx context.Context, d *schema.Document, entry LoginEntry) error {
	history := append([]any{entry.toDocument()}, d.Slice(fieldLoginHistory)...)
	if len(history) > b.deps.HistoryLimit {
		history = history[:b.deps.HistoryLimit]
	}
	if err := d.Set(fieldLoginHistory, history); err != nil {
		return err
	}
	return d.Save(ctx)
}

// generatePasswordResetToken stores the digest of a fresh token and returns
// the token itself.
func (b *behaviours) generatePasswordResetToken(ctx context.Context, d *schema.Document) (string, error) {
	token, err := crypto.GenerateHexToken(b.deps.Random, b.deps.TokenBytes)
	if err != nil {
		return "", err
	}
	if err := d.Set(fieldResetToken, crypto.HashToken(token)); err != nil {
		return "", err
	}
	if err := d.Set(fieldResetExpires, b.now().Add(b.deps.ResetTokenTTL)); err != nil {
		return "", err
	}
	if err := d.Save(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// recordLogin applies the outcome of an authentication attempt.
func (b *behaviours) recordLogin(ctx context.Context, d *schema.Document, entry LoginEntry) error {
	result := "failure"
	if entry.Success {
		result = "success"
	}
	monitoring.RecordLoginAttempt(result)

	if !entry.Success {
		if err := b.incrementFailedLogins(ctx, d); err != nil {
			return err
		}
		return b.addLoginHistory(ctx, d, entry)
	}

	if err := clearLockout(d); err != nil {
		return err
	}
	if err := d.Set(fieldLastLogin, b.now()); err != nil {
		return err
	}
	return b.addLoginHistory(ctx, d, entry)
}

// findActiveBy loads the active account whose path equals value.
func (b *behaviours) findActiveBy(ctx context.Context, m *schema.Model, path, value string) (*schema.Document, error) {
	return m.FindOne(ctx, bson.M{
		path:        normalizeLookup(path, value),
		fieldStatus: string(StatusActive),
	})
}

func (b *behaviours) findByIDActiveOnly(ctx context.Context, m *schema.Model, id any) (*schema.Document, error) {
	return m.FindByID(ctx, id, schema.Where(fieldStatus, string(StatusActive)))
}

func (b *behaviours) findByEmailOrUsername(ctx context.Context, m *schema.Model, identifier string) (*schema.Document, error) {
	identifier = strings.TrimSpace(identifier)
	return m.FindOne(ctx, bson.M{
		fieldStatus: string(StatusActive),
		"$or": []any{
			bson.M{fieldEmail: strings.ToLower(identifier)},
			bson.M{fieldUsername: identifier},
		},
	})
}

// searchUser matches term case insensitively against names and email.
func (b *behaviours) searchUser(ctx context.Context, m *schema.Model, term string) ([]*schema.Document, error) {
	pattern := bson.M{"$regex": regexp.QuoteMeta(strings.TrimSpace(term)), "$options": "i"}
	return m.Find(ctx, bson.M{
		fieldStatus: string(StatusActive),
		"$or": []any{
			bson.M{fieldFirstName: pattern},
			bson.M{fieldLastName: pattern},
			bson.M{fieldEmail: pattern},
		},
	}, schema.SortBy(bson.D{{Key: fieldLastName, Value: 1}, {Key: fieldFirstName, Value: 1}}))
}

func (b *behaviours) lockUserByID(ctx context.Context, m *schema.Model, id any) (*schema.Document, error) {
	return b.moveByID(ctx, m, id, StatusSuspended)
}

func (b *behaviours) activateUserByID(ctx context.Context, m *schema.Model, id any) (*schema.Document, error) {
	return b.moveByID(ctx, m, id, StatusActive)
}

// moveByID loads an account regardless of status and moves it to target.
// An account already in target is returned unchanged.
func (b *behaviours) moveByID(ctx context.Context, m *schema.Model, id any, target Status) (*schema.Document, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	d, err := m.FindOne(ctx, bson.M{"_id": oid, fieldStatus: bson.M{"$in": allStatuses()}})
	if err != nil {
		return nil, err
	}
	if Status(d.String(fieldStatus)) == target {
		return d, nil
	}
	if err := b.transition(ctx, d, target); err != nil {
		return nil, err
	}
	return d, nil
}

// softDelete deactivates the first account matching filter. Accounts of
// every status are considered unless the filter names one.
func (b *behaviours) softDelete(ctx context.Context, m *schema.Model, filter bson.M) (*schema.Document, error) {
	scoped := make(bson.M, len(filter)+1)
	for key, value := range filter {
		scoped[key] = value
	}
	if _, ok := scoped[fieldStatus]; !ok {
		scoped[fieldStatus] = bson.M{"$in": allStatuses()}
	}

	d, err := m.FindOne(ctx, scoped)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, apperrors.NewNotFound("Account not found").WithInternal(err)
		}
		return nil, err
	}
	if err := b.transition(ctx, d, StatusDeactivated); err != nil {
		return nil, err
	}
	return d, nil
}

func objectID(id any) (primitive.ObjectID, error) {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v, nil
	case string:
		oid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return primitive.NilObjectID, apperrors.NewValidation("Invalid account id", []apperrors.FieldDetail{
				{Field: "_id", Kind: "cast", Message: fmt.Sprintf("Cast to ObjectId failed for value %q", v)},
			})
		}
		return oid, nil
	default:
		return primitive.NilObjectID, fmt.Errorf("accounts: unsupported id type %T", id)
	}
}

func normalizeLookup(path, value string) string {
	value = strings.TrimSpace(value)
	if path == fieldEmail {
		return strings.ToLower(value)
	}
	return value
}

func stringArg(name string, args []any, i int) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("accounts: %s expects %d arguments", name, i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("accounts: %s argument %d must be a string, got %T", name, i, args[i])
	}
	return s, nil
}
