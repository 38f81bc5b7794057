package repository

import (
	"context"

	"github.com/smallbiznis/bursar/pkg/db/option"
)

// Store reads and writes rows of T that carry a school_id column. Every query
// is confined to the school the store was opened for.
type Store[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Exists(ctx context.Context, query *T, opts ...option.QueryOption) (bool, error)
	Create(ctx context.Context, resource *T) error
}
