package service

import (
	"context"

	"github.com/inkwell/internal/slug"
	"gorm.io/gorm"
)

// MaxSlugAttempts bounds the candidates tried for one slug: base, base-1 … base-(MaxSlugAttempts-1).
const MaxSlugAttempts = 50

// SlugLookup 判断候选 slug 是否被 excludeID 以外的记录占用，
// excludeID 为 0 表示不排除任何记录
type SlugLookup func(ctx context.Context, candidate string, excludeID uint) (bool, error)

// SlugResolution ResolveUniqueSlug 的结果
type SlugResolution struct {
	Slug       string
	Collisions int
}

// ResolveUniqueSlug returns the first free candidate among base, base-1, base-2, …
// The answer is only advisory: a concurrent writer may take the same slug before
// the caller commits, which the unique index then reports as ErrSlugTaken.
func ResolveUniqueSlug(ctx context.Context, base string, excludeID uint, taken SlugLookup) (SlugResolution, error) {
	if base == "" {
		base = slug.Fallback
	}

	for attempt := 0; attempt < MaxSlugAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return SlugResolution{Collisions: attempt}, storageError("resolve slug", err)
		}

		candidate := slug.WithSuffix(base, attempt)
		exists, err := taken(ctx, candidate, excludeID)
		if err != nil {
			return SlugResolution{Collisions: attempt}, err
		}
		if !exists {
			return SlugResolution{Slug: candidate, Collisions: attempt}, nil
		}
	}

	return SlugResolution{Collisions: MaxSlugAttempts}, ErrSlugExhausted
}

// tableSlugLookup 在 tx 中检查 model 对应表的 slug 列
func tableSlugLookup(tx *gorm.DB, model any) SlugLookup {
	return func(ctx context.Context, candidate string, excludeID uint) (bool, error) {
		query := tx.WithContext(ctx).Model(model).Where("slug = ?", candidate)
		if excludeID != 0 {
			query = query.Where("id <> ?", excludeID)
		}

		var count int64
		if err := query.Count(&count).Error; err != nil {
			return false, storageError("lookup slug", err)
		}
		return count > 0, nil
	}
}
