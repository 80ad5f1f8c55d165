package accounts

import (
	"context"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/charlesng35/estatehub/internal/schema"
)

// LoginEntry is one authentication attempt kept in the login history.
type LoginEntry struct {
	IPAddress string
	UserAgent string
	Success   bool
	// LoginAt defaults to the current time when zero.
	LoginAt time.Time
}

func (e LoginEntry) toDocument() bson.M {
	doc := bson.M{"ipAddress": e.IPAddress, "success": e.Success}
	if e.UserAgent != "" {
		doc["userAgent"] = e.UserAgent
	}
	if !e.LoginAt.IsZero() {
		doc["loginAt"] = e.LoginAt
	}
	return doc
}

func loginEntryFrom(v any) (LoginEntry, bool) {
	doc, ok := v.(bson.M)
	if !ok {
		return LoginEntry{}, false
	}
	entry := LoginEntry{}
	entry.IPAddress, _ = doc["ipAddress"].(string)
	entry.UserAgent, _ = doc["userAgent"].(string)
	entry.Success, _ = doc["success"].(bool)
	entry.LoginAt, _ = doc["loginAt"].(time.Time)
	return entry, true
}

// Account is a typed view over an account document.
type Account struct {
	doc *schema.Document
	b   *behaviours
}

// Document exposes the underlying document.
func (a *Account) Document() *schema.Document { return a.doc }

func (a *Account) ID() primitive.ObjectID { return a.doc.ID() }
func (a *Account) Username() string       { return a.doc.String(fieldUsername) }
func (a *Account) Email() string          { return a.doc.String(fieldEmail) }
func (a *Account) FirstName() string      { return a.doc.String(fieldFirstName) }
func (a *Account) LastName() string       { return a.doc.String(fieldLastName) }
func (a *Account) PhoneNumber() string    { return a.doc.String(fieldPhone) }
func (a *Account) Avatar() string         { return a.doc.String("avatar") }
func (a *Account) Status() Status         { return Status(a.doc.String(fieldStatus)) }
func (a *Account) Role() Role             { return Role(a.doc.String(fieldRole)) }
func (a *Account) EmailVerified() bool    { return a.doc.Bool(fieldEmailVerified) }

// FullName joins first and last name.
func (a *Account) FullName() string {
	name, _ := a.doc.Get(virtualFullName).(string)
	return name
}

// FailedLoginAttempts is the consecutive failure counter.
func (a *Account) FailedLoginAttempts() int {
	return int(a.doc.Float(fieldFailedAttempts))
}

// LockUntil returns the lock expiry, if any.
func (a *Account) LockUntil() (time.Time, bool) { return a.doc.Time(fieldLockUntil) }

// LastLogin returns the time of the last successful login, if any.
func (a *Account) LastLogin() (time.Time, bool) { return a.doc.Time(fieldLastLogin) }

// DeletedAt returns the soft delete time, if any.
func (a *Account) DeletedAt() (time.Time, bool) { return a.doc.Time(fieldDeletedAt) }

// LoginHistory returns recorded attempts, newest first.
func (a *Account) LoginHistory() []LoginEntry {
	items := a.doc.Slice(fieldLoginHistory)
	out := make([]LoginEntry, 0, len(items))
	for _, item := range items {
		if entry, ok := loginEntryFrom(item); ok {
			out = append(out, entry)
		}
	}
	return out
}

// SessionTokens lists the active session token digests when loaded.
func (a *Account) SessionTokens() []string {
	items := a.doc.Slice(fieldSessionTokens)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Set assigns a field; see schema.Document.Set.
func (a *Account) Set(path string, value any) error { return a.doc.Set(path, value) }

// Save validates and persists pending changes.
func (a *Account) Save(ctx context.Context) error { return schema.TranslateError(a.doc.Save(ctx)) }

// IsLocked reports whether the lockout window is still open.
func (a *Account) IsLocked() bool { return a.b.isLocked(a.doc) }

func (a *Account) IncrementFailedLogins(ctx context.Context) error {
	return schema.TranslateError(a.b.incrementFailedLogins(ctx, a.doc))
}

func (a *Account) ResetFailedLogins(ctx context.Context) error {
	return schema.TranslateError(a.b.resetFailedLogins(ctx, a.doc))
}

// ComparePassword reports whether candidate matches the stored hash. A
// mismatch is not an error.
func (a *Account) ComparePassword(ctx context.Context, candidate string) (bool, error) {
	return a.b.comparePassword(ctx, a.doc, candidate)
}

// GenerateEmailVerificationToken stores and returns a fresh random token.
func (a *Account) GenerateEmailVerificationToken(ctx context.Context) (string, error) {
	token, err := a.b.generateEmailVerificationToken(ctx, a.doc)
	return token, schema.TranslateError(err)
}

// VerifyEmail marks the email verified when token matches the stored one.
func (a *Account) VerifyEmail(ctx context.Context, token string) error {
	return schema.TranslateError(a.b.verifyEmail(ctx, a.doc, token))
}

func (a *Account) AddLoginHistory(ctx context.Context, entry LoginEntry) error {
	return schema.TranslateError(a.b.addLoginHistory(ctx, a.doc, entry))
}

// GeneratePasswordResetToken returns a token whose digest is stored with an
// expiry.
func (a *Account) GeneratePasswordResetToken(ctx context.Context) (string, error) {
	token, err := a.b.generatePasswordResetToken(ctx, a.doc)
	return token, schema.TranslateError(err)
}

// RecordLogin updates counters and history after an authentication attempt.
func (a *Account) RecordLogin(ctx context.Context, entry LoginEntry) error {
	return schema.TranslateError(a.b.recordLogin(ctx, a.doc, entry))
}

// MarshalJSON renders the public representation.
func (a *Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.doc.ToJSON())
}
