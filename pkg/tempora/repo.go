package tempora

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/temporadb/tempora/internal/repository"
)

// Record is one row keyed by column name.
type Record = map[string]any

// GetOpts adjusts point reads.
type GetOpts struct {
	// AsOf selects the version whose validity window contains the timestamp
	// (SCD2 only). Nil means the current version.
	AsOf *time.Time
	// IncludeDeleted returns soft-deleted records instead of filtering them.
	IncludeDeleted bool
}

// FieldDiff is one field's difference between two versions.
type FieldDiff struct {
	Old     any
	New     any
	Changed bool
}

// Repo is the strategy-aware record store for one table. Reads return a nil
// Record when nothing matches.
type Repo struct {
	inner   repository.Repository
	timeout time.Duration
}

// WithTenant returns a copy scoped to one tenant. Required before any call
// on a multi-tenant table; every statement the copy issues carries the
// tenant id.
func (r *Repo) WithTenant(tenantID uuid.UUID) *Repo {
	return &Repo{
		inner:   repository.WithTenant(r.inner, tenantID),
		timeout: r.timeout,
	}
}

// Create inserts a new record and returns it with its generated columns.
func (r *Repo) Create(ctx context.Context, values Record, actor string) (Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := r.inner.Create(ctx, repository.Record(values), actor)
	return Record(rec), err
}

// Update applies the given field values to the record. Under SCD2 this
// closes the current version and creates the next one.
func (r *Repo) Update(ctx context.Context, id any, values Record, actor string) (Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := r.inner.Update(ctx, id, repository.Record(values), actor)
	return Record(rec), err
}

// Delete removes the record: soft when the strategy or table enables it,
// physical when forced. Returns whether a record was affected.
func (r *Repo) Delete(ctx context.Context, id any, actor string, force bool) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.inner.Delete(ctx, id, actor, force)
}

// Get returns the record, or nil when absent.
func (r *Repo) Get(ctx context.Context, id any, opts GetOpts) (Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := r.inner.Get(ctx, id, repository.GetOpts{
		AsOf:           opts.AsOf,
		IncludeDeleted: opts.IncludeDeleted,
	})
	return Record(rec), err
}

// List returns records matching the equality filters, up to limit (0 means
// no limit).
func (r *Repo) List(ctx context.Context, filters Record, limit int) ([]Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	recs, err := r.inner.List(ctx, repository.Record(filters), limit)
	return toPublicRecords(recs), err
}

// GetVersion returns an exact version of an SCD2 record, or nil when absent.
func (r *Repo) GetVersion(ctx context.Context, id any, version int) (Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := r.inner.GetVersion(ctx, id, version)
	return Record(rec), err
}

// GetVersionHistory returns every version of an SCD2 record, oldest first.
func (r *Repo) GetVersionHistory(ctx context.Context, id any) ([]Record, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	recs, err := r.inner.GetVersionHistory(ctx, id)
	return toPublicRecords(recs), err
}

// CompareVersions reports the field-by-field difference between two versions
// of an SCD2 record.
func (r *Repo) CompareVersions(ctx context.Context, id any, v1, v2 int) (map[string]FieldDiff, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	diff, err := r.inner.CompareVersions(ctx, id, v1, v2)
	if err != nil {
		return nil, err
	}
	out := make(map[string]FieldDiff, len(diff))
	for field, d := range diff {
		out[field] = FieldDiff{Old: d.Old, New: d.New, Changed: d.Changed}
	}
	return out, nil
}

func (r *Repo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func toPublicRecords(recs []repository.Record) []Record {
	if recs == nil {
		return nil
	}
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = Record(rec)
	}
	return out
}
