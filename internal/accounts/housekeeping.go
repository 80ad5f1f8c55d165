package accounts

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/multierr"

	"github.com/charlesng35/estatehub/internal/schema"
)

// PurgeExpiredResetTokens removes password reset tokens that expired before
// now, across every status. It returns the number of accounts cleaned.
func (r *Repository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int, error) {
	docs, err := r.model.Find(ctx, bson.M{
		fieldStatus:       bson.M{"$in": allStatuses()},
		fieldResetExpires: bson.M{"$lt": now.UTC()},
	}, schema.Select("+"+fieldResetToken, "+"+fieldResetExpires))
	if err != nil {
		return 0, err
	}
	return r.sweep(ctx, docs, func(d *schema.Document) error {
		d.Unset(fieldResetToken)
		d.Unset(fieldResetExpires)
		return nil
	})
}

// ReleaseExpiredLocks clears lockouts that ended before now and resets their
// failure counters.
func (r *Repository) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	docs, err := r.model.Find(ctx, bson.M{
		fieldStatus:    bson.M{"$in": allStatuses()},
		fieldLockUntil: bson.M{"$lt": now.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return r.sweep(ctx, docs, func(d *schema.Document) error {
		d.Unset(fieldLockUntil)
		return d.Set(fieldFailedAttempts, 0)
	})
}

func (r *Repository) sweep(ctx context.Context, docs []*schema.Document, apply func(*schema.Document) error) (int, error) {
	var (
		errs    error
		cleaned int
	)
	for _, d := range docs {
		if err := apply(d); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := d.Save(ctx); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		cleaned++
	}
	return cleaned, errs
}
