package db

import (
	"context"

	"github.com/linkcut/linkcut/internal/types"
)

// ShortenerStorage is the durable, authoritative store for links and clicks.
// Backends report missing records with types.ErrNotFound and unique-constraint
// violations with types.ErrConflict.
type ShortenerStorage interface {
	// Insert stores a new link. Returns types.ErrConflict when the short code
	// or alias is already taken, and the stored record (with ID assigned) otherwise.
	Insert(ctx context.Context, link types.ShortLink) (types.ShortLink, error)
	// GetByCode returns the link whose short code or custom alias equals key.
	GetByCode(ctx context.Context, key string) (types.ShortLink, error)
	// CodeInUse reports whether key collides with any existing code or alias,
	// including soft-deleted records. Codes are never reused.
	CodeInUse(ctx context.Context, key string) (bool, error)
	// Update changes the alias and/or expiration of a link.
	Update(ctx context.Context, code string, upd types.LinkUpdate) (types.ShortLink, error)
	// Deactivate soft-deletes a link. The record and its click history remain.
	Deactivate(ctx context.Context, code string) error
	// AddClick appends a click event and increments the link's durable click
	// count as one atomic operation.
	AddClick(ctx context.Context, ev types.ClickEvent) error
	// ClickCount returns the durable click count for a code.
	ClickCount(ctx context.Context, code string) (int64, error)
	// Summary aggregates the click history of a code.
	Summary(ctx context.Context, code string) (types.ClickSummary, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
