package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/inkwell/internal/db"
	"github.com/inkwell/internal/metrics"
	"github.com/inkwell/internal/slug"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// MaxTagNameLength 标签名最大长度（按字符计）
	MaxTagNameLength = 50
	defaultTagLimit  = 10
	maxTagLimit      = 100
	tagSlugFallback  = "tag"
)

// TagService 将标签名对齐到标签记录并清理孤立标签。
// 标签为全局共享，创建者仅作记录，不用于权限范围
type TagService struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// GCResult 一次标签回收的结果
type GCResult struct {
	Deleted []uint
	Kept    []uint
	Failed  []uint
}

// NewTagService 创建 TagService 实例
func NewTagService(gdb *gorm.DB, m *metrics.Metrics) *TagService {
	return &TagService{db: gdb, metrics: m}
}

// NormalizeTagNames 转小写并折叠空白，
// 丢弃空、超长和重复的名称，保持首次出现的顺序
func NormalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
		if name == "" || utf8.RuneCountInString(name) > MaxTagNameLength {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Resolve 按名称 upsert 标签并按规范化顺序返回
func (s *TagService) Resolve(ctx context.Context, names []string, ownerID uint) ([]db.Tag, error) {
	var tags []db.Tag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tags, err = s.resolveTx(ctx, tx, names, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// resolveTx 批量插入缺失标签后回读规范记录，
// 已存在的标签（包括创建者）保持不变
func (s *TagService) resolveTx(ctx context.Context, tx *gorm.DB, names []string, ownerID uint) ([]db.Tag, error) {
	normalized := NormalizeTagNames(names)
	if len(normalized) == 0 {
		return []db.Tag{}, nil
	}

	existing, err := findTagsByName(tx, normalized)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0, len(normalized))
	for _, name := range normalized {
		if _, ok := existing[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		reserved := make(map[string]bool, len(missing))
		stored := tableSlugLookup(tx, &db.Tag{})
		taken := func(ctx context.Context, candidate string, excludeID uint) (bool, error) {
			if reserved[candidate] {
				return true, nil
			}
			return stored(ctx, candidate, excludeID)
		}

		fresh := make([]db.Tag, 0, len(missing))
		for _, name := range missing {
			res, err := ResolveUniqueSlug(ctx, slug.MakeWithFallback(name, tagSlugFallback), 0, taken)
			s.metrics.SlugCollisions(res.Collisions)
			if err != nil {
				return nil, err
			}
			reserved[res.Slug] = true
			fresh = append(fresh, db.Tag{Name: name, Slug: res.Slug, UserID: ownerID})
		}

		// 并发写入时已存在的行保持不变，随后统一回读
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return nil, storageError("upsert tags", err)
		}

		existing, err = findTagsByName(tx, normalized)
		if err != nil {
			return nil, err
		}
	}

	tags := make([]db.Tag, 0, len(normalized))
	for _, name := range normalized {
		tag, ok := existing[name]
		if !ok {
			// 名称未落库说明 slug 被并发写入抢占
			return nil, ErrTagConflict
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func findTagsByName(tx *gorm.DB, names []string) (map[string]db.Tag, error) {
	var tags []db.Tag
	if err := tx.Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, storageError("find tags", err)
	}
	byName := make(map[string]db.Tag, len(tags))
	for _, tag := range tags {
		byName[tag.Name] = tag
	}
	return byName, nil
}

// CollectGarbage 删除 tagIDs 中不再被任何文章引用的标签，可重复执行。
// 单个标签失败不影响其他标签，失败会记录日志、计数并合并返回，
// 该标签留待后续扫描
func (s *TagService) CollectGarbage(ctx context.Context, tagIDs []uint) (GCResult, error) {
	var (
		result GCResult
		errs   []error
	)
	log := zerolog.Ctx(ctx)

	seen := make(map[uint]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		deleted, err := s.collectOne(ctx, id)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, id)
			errs = append(errs, fmt.Errorf("collect tag %d: %w", id, err))
			s.metrics.TagGCFailed()
			log.Warn().Err(err).Uint("tag_id", id).Msg("tag garbage collection failed, left for sweep")
		case deleted:
			result.Deleted = append(result.Deleted, id)
		default:
			result.Kept = append(result.Kept, id)
		}
	}

	s.metrics.TagsCollected(len(result.Deleted))
	return result, errors.Join(errs...)
}

// collectOne 仅在引用数为零时删除标签，
// 已不存在的标签计为保留
func (s *TagService) collectOne(ctx context.Context, id uint) (bool, error) {
	count, err := s.postUsageCount(ctx, id)
	if err != nil {
		return false, err
	}

	if count > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Tag{}).
			Where("id = ?", id).
			UpdateColumn("post_count", count).Error; err != nil {
			return false, storageError("reconcile post_count", err)
		}
		return false, nil
	}

	// 条件删除，防止计数后有新文章引用该标签
	result := s.db.WithContext(ctx).
		Where("id = ? AND NOT EXISTS (SELECT 1 FROM post_tags WHERE post_tags.tag_id = tags.id)", id).
		Delete(&db.Tag{})
	if result.Error != nil {
		return false, storageError("delete tag", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SweepOrphans 对所有未被引用的标签执行回收
func (s *TagService) SweepOrphans(ctx context.Context) (GCResult, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&db.Tag{}).
		Where("NOT EXISTS (SELECT 1 FROM post_tags WHERE post_tags.tag_id = tags.id)").
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return GCResult{}, storageError("find orphan tags", err)
	}
	if len(ids) == 0 {
		return GCResult{}, nil
	}
	return s.CollectGarbage(ctx, ids)
}

// List 按使用次数倒序返回标签
func (s *TagService) List(ctx context.Context, limit int) ([]db.Tag, error) {
	if limit <= 0 {
		limit = defaultTagLimit
	}
	if limit > maxTagLimit {
		limit = maxTagLimit
	}

	var tags []db.Tag
	if err := s.db.WithContext(ctx).
		Order("post_count desc").
		Order("name asc").
		Limit(limit).
		Find(&tags).Error; err != nil {
		return nil, storageError("list tags", err)
	}
	return tags, nil
}

// adjustPostCounts 在文章事务内随关联变化同步 post_count
func adjustPostCounts(tx *gorm.DB, added, removed []uint) error {
	if len(added) > 0 {
		if err := tx.Model(&db.Tag{}).
			Where("id IN ?", added).
			UpdateColumn("post_count", gorm.Expr("post_count + 1")).Error; err != nil {
			return storageError("increment tag post_count", err)
		}
	}
	if len(removed) > 0 {
		if err := tx.Model(&db.Tag{}).
			Where("id IN ? AND post_count > 0", removed).
			UpdateColumn("post_count", gorm.Expr("post_count - 1")).Error; err != nil {
			return storageError("decrement tag post_count", err)
		}
	}
	return nil
}

func (s *TagService) postUsageCount(ctx context.Context, id uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Post{}).
		Joins("JOIN post_tags ON posts.id = post_tags.post_id").
		Where("post_tags.tag_id = ?", id).
		Count(&count).Error; err != nil {
		return 0, storageError("count tag usage", err)
	}
	return count, nil
}

// diffIDs returns ids in next but not in prev, and ids in prev but not in next.
func diffIDs(prev, next []uint) (added, removed []uint) {
	prevSet := make(map[uint]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	nextSet := make(map[uint]struct{}, len(next))
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
