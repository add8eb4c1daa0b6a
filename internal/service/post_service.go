package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/inkwell/internal/db"
	"github.com/inkwell/internal/metrics"
	"github.com/inkwell/internal/slug"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 200

	defaultPostLimit = 9
	maxPostLimit     = 100
)

// 请求字段名到可排序列的映射
var postSortColumns = map[string]string{
	"createdAt":   "posts.created_at",
	"created_at":  "posts.created_at",
	"updatedAt":   "posts.updated_at",
	"updated_at":  "posts.updated_at",
	"title":       "posts.title",
	"total_reads": "posts.total_reads",
	"totalReads":  "posts.total_reads",
	"version":     "posts.version",
}

// PostService 封装文章相关的数据库操作，
// 每次保存时协调标签、slug 与版本
type PostService struct {
	db       *gorm.DB
	tags     *TagService
	versions *VersionTracker
	metrics  *metrics.Metrics
}

// PostInput 创建文章时接受的字段
type PostInput struct {
	UserID      uint
	Title       string
	Description string
	Banner      string
	Content     string
	Format      string
	Tags        []string
	// Draft 为 nil 时文章以草稿创建
	Draft *bool
}

// PostPatch 局部更新，nil 字段保持不变
type PostPatch struct {
	Title       *string
	Description *string
	Banner      *string
	Content     *string
	Format      string
	Tags        *[]string
	Draft       *bool
	// Status 优先于 Draft
	Status *string
	// ExpectedVersion 与存储版本不一致时拒绝更新
	ExpectedVersion *int
}

// DeleteResult 删除结果及随后的标签回收情况
// 部分标签回收失败时 GCError 非空，删除依然有效
type DeleteResult struct {
	Slug    string
	TagGC   GCResult
	GCError error
}

// PostQuery 文章列表的筛选条件
type PostQuery struct {
	PostID     uint
	UserID     uint
	Slug       string
	Tag        string
	Search     string
	Status     string
	SortBy     string
	Order      string
	StartIndex int
	Limit      int
	// Latest 强制按最新排序并忽略 StartIndex
	Latest bool
	// ViewerID 可见自己的草稿与归档文章，其他人仅见已发布文章
	ViewerID uint
}

// PostListResult 分页列表结果
type PostListResult struct {
	Posts      []db.Post
	Total      int64
	StartIndex int
	Limit      int
}

// NewPostService 创建 PostService 实例
func NewPostService(gdb *gorm.DB, tags *TagService, m *metrics.Metrics) *PostService {
	return &PostService{db: gdb, tags: tags, versions: NewVersionTracker(nil), metrics: m}
}

// WithClock 替换版本时间戳使用的时钟
func (s *PostService) WithClock(clock func() time.Time) *PostService {
	s.versions = NewVersionTracker(clock)
	return s
}

// Create 以版本 1 保存文章并写入首条历史
func (s *PostService) Create(ctx context.Context, input PostInput) (*db.Post, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	verr := &ValidationError{}
	validateTitle(verr, title)
	validateDescription(verr, description)
	if input.UserID == 0 {
		return nil, ErrUnauthorized
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	content, err := RenderContent(input.Format, input.Content)
	if err != nil {
		return nil, err
	}

	status := db.StatusDraft
	if input.Draft != nil && !*input.Draft {
		status = db.StatusPublished
	}

	var postID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUserExists(tx, input.UserID); err != nil {
			return err
		}
		if err := ensureTitleFree(tx, title, 0); err != nil {
			return err
		}

		tags, err := s.tags.resolveTx(ctx, tx, input.Tags, input.UserID)
		if err != nil {
			return err
		}

		res, err := ResolveUniqueSlug(ctx, slug.Make(title), 0, tableSlugLookup(tx, &db.Post{}))
		s.metrics.SlugCollisions(res.Collisions)
		if err != nil {
			return err
		}

		post := db.Post{
			UserID:      input.UserID,
			Title:       title,
			Slug:        res.Slug,
			Description: description,
			Banner:      strings.TrimSpace(input.Banner),
			Content:     content,
			Status:      status,
		}
		rev := s.versions.Start(&post)

		if err := tx.Omit(clause.Associations).Create(&post).Error; err != nil {
			return postWriteError("create post", err)
		}
		if err := appendRevision(tx, post.ID, &rev); err != nil {
			return err
		}
		if err := attachTags(tx, &post, nil, tags); err != nil {
			return err
		}
		if err := tx.Model(&db.User{}).
			Where("id = ?", input.UserID).
			UpdateColumn("total_posts", gorm.Expr("total_posts + 1")).Error; err != nil {
			return storageError("increment total_posts", err)
		}

		postID = post.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PostSaved("create")
	return s.reload(ctx, postID)
}

// Update 将提供的字段合并到 postSlug 对应的文章，
// 版本号恰好加一
func (s *PostService) Update(ctx context.Context, postSlug string, userID uint, patch PostPatch) (*db.Post, error) {
	verr := &ValidationError{}
	var title, description string
	if patch.Title != nil {
		title = strings.TrimSpace(*patch.Title)
		validateTitle(verr, title)
	}
	if patch.Description != nil {
		description = strings.TrimSpace(*patch.Description)
		validateDescription(verr, description)
	}
	if patch.Status != nil && !db.ValidStatus(*patch.Status) {
		verr.Add("status", "status must be draft, published or archived")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var content string
	if patch.Content != nil {
		rendered, err := RenderContent(patch.Format, *patch.Content)
		if err != nil {
			return nil, err
		}
		content = rendered
	}

	var postID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := findPostBySlug(tx.Preload("Tags"), postSlug)
		if err != nil {
			return err
		}
		if post.UserID != userID {
			return ErrNotPostOwner
		}
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != post.Version {
			return ErrVersionMismatch
		}
		prevVersion := post.Version

		if patch.Title != nil && title != post.Title {
			if err := ensureTitleFree(tx, title, post.ID); err != nil {
				return err
			}
			res, err := ResolveUniqueSlug(ctx, slug.Make(title), post.ID, tableSlugLookup(tx, &db.Post{}))
			s.metrics.SlugCollisions(res.Collisions)
			if err != nil {
				return err
			}
			post.Title = title
			post.Slug = res.Slug
		}
		if patch.Description != nil {
			post.Description = description
		}
		if patch.Banner != nil {
			post.Banner = strings.TrimSpace(*patch.Banner)
		}
		if patch.Content != nil {
			post.Content = content
		}
		switch {
		case patch.Status != nil:
			post.Status = *patch.Status
		case patch.Draft != nil && *patch.Draft:
			post.Status = db.StatusDraft
		case patch.Draft != nil:
			post.Status = db.StatusPublished
		}

		if patch.Tags != nil {
			tags, err := s.tags.resolveTx(ctx, tx, *patch.Tags, userID)
			if err != nil {
				return err
			}
			if err := attachTags(tx, post, post.TagIDs(), tags); err != nil {
				return err
			}
		}

		rev := s.versions.Advance(post)

		// 以读取时的版本号作为写入条件，并发保存只有一个能成功
		result := tx.Model(&db.Post{}).
			Where("id = ? AND version = ?", post.ID, prevVersion).
			Updates(map[string]interface{}{
				"title":       post.Title,
				"slug":        post.Slug,
				"description": post.Description,
				"banner":      post.Banner,
				"content":     post.Content,
				"status":      post.Status,
				"version":     post.Version,
			})
		if result.Error != nil {
			return postWriteError("update post", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrVersionMismatch
		}
		if err := appendRevision(tx, post.ID, &rev); err != nil {
			return err
		}

		postID = post.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PostSaved("update")
	return s.reload(ctx, postID)
}

// Delete 删除文章及其历史，然后回收其引用的标签。
// 回收在删除提交后执行，失败不会回滚删除
func (s *PostService) Delete(ctx context.Context, postSlug string, userID uint) (DeleteResult, error) {
	var tagIDs []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := findPostBySlug(tx.Preload("Tags"), postSlug)
		if err != nil {
			return err
		}
		if post.UserID != userID {
			return ErrNotPostOwner
		}
		tagIDs = post.TagIDs()

		if err := tx.Model(post).Association("Tags").Clear(); err != nil {
			return storageError("detach tags", err)
		}
		if err := adjustPostCounts(tx, nil, tagIDs); err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&db.PostRevision{}).Error; err != nil {
			return storageError("delete history", err)
		}
		if err := tx.Delete(&db.Post{}, post.ID).Error; err != nil {
			return storageError("delete post", err)
		}
		if err := tx.Model(&db.User{}).
			Where("id = ? AND total_posts > 0", post.UserID).
			UpdateColumn("total_posts", gorm.Expr("total_posts - 1")).Error; err != nil {
			return storageError("decrement total_posts", err)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.metrics.PostSaved("delete")
	result := DeleteResult{Slug: postSlug}
	if len(tagIDs) == 0 {
		return result, nil
	}

	result.TagGC, result.GCError = s.tags.CollectGarbage(ctx, tagIDs)
	if result.GCError != nil {
		zerolog.Ctx(ctx).Warn().Err(result.GCError).
			Str("slug", postSlug).
			Msg("post deleted but some tags were not collected")
	}
	return result, nil
}

// Read 返回文章及其标签与历史。非作者读取时
// 同时累加文章和作者账户的 total_reads
func (s *PostService) Read(ctx context.Context, postSlug string, viewerID uint) (*db.Post, error) {
	post, err := findPostBySlug(s.db.WithContext(ctx).
		Preload("Tags", orderedTags).
		Preload("History", orderedHistory), postSlug)
	if err != nil {
		return nil, err
	}
	if !visibleTo(post, viewerID) {
		return nil, ErrPostNotFound
	}
	if post.UserID == viewerID {
		return post, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Post{}).
			Where("id = ?", post.ID).
			UpdateColumn("total_reads", gorm.Expr("total_reads + 1")).Error; err != nil {
			return storageError("increment post reads", err)
		}
		if err := tx.Model(&db.User{}).
			Where("id = ?", post.UserID).
			UpdateColumn("total_reads", gorm.Expr("total_reads + 1")).Error; err != nil {
			return storageError("increment user reads", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	post.TotalReads++
	return post, nil
}

// History 按时间顺序列出文章的全部版本
func (s *PostService) History(ctx context.Context, postSlug string, viewerID uint) ([]db.PostRevision, error) {
	post, err := findPostBySlug(s.db.WithContext(ctx), postSlug)
	if err != nil {
		return nil, err
	}
	if !visibleTo(post, viewerID) {
		return nil, ErrPostNotFound
	}
	return loadHistory(ctx, s.db, post.ID)
}

// List 返回筛选、排序、分页后的文章。
// 未知排序字段回退为创建时间
func (s *PostService) List(ctx context.Context, q PostQuery) (*PostListResult, error) {
	result := &PostListResult{StartIndex: q.StartIndex, Limit: q.Limit}
	if result.StartIndex < 0 || q.Latest {
		result.StartIndex = 0
	}
	if result.Limit <= 0 {
		result.Limit = defaultPostLimit
	}
	if result.Limit > maxPostLimit {
		result.Limit = maxPostLimit
	}

	modelQuery := s.applyFilters(s.db.WithContext(ctx).Model(&db.Post{}), q)
	if err := modelQuery.Count(&result.Total).Error; err != nil {
		return nil, storageError("count posts", err)
	}

	orderBy := "posts.created_at"
	direction := "desc"
	if !q.Latest {
		if column, ok := postSortColumns[q.SortBy]; ok {
			orderBy = column
		}
		if strings.EqualFold(q.Order, "asc") {
			direction = "asc"
		}
	}

	var posts []db.Post
	dataQuery := s.applyFilters(s.db.WithContext(ctx).Model(&db.Post{}).Preload("Tags", orderedTags), q)
	if err := dataQuery.
		Order(orderBy + " " + direction).
		Order("posts.id " + direction).
		Limit(result.Limit).
		Offset(result.StartIndex).
		Find(&posts).Error; err != nil {
		return nil, storageError("list posts", err)
	}

	result.Posts = posts
	return result, nil
}

func (s *PostService) applyFilters(query *gorm.DB, q PostQuery) *gorm.DB {
	if q.ViewerID != 0 {
		query = query.Where("(posts.status = ? OR posts.user_id = ?)", db.StatusPublished, q.ViewerID)
	} else {
		query = query.Where("posts.status = ?", db.StatusPublished)
	}

	if q.PostID != 0 {
		query = query.Where("posts.id = ?", q.PostID)
	}
	if q.UserID != 0 {
		query = query.Where("posts.user_id = ?", q.UserID)
	}
	if q.Slug != "" {
		query = query.Where("posts.slug = ?", q.Slug)
	}
	if q.Status != "" {
		query = query.Where("posts.status = ?", q.Status)
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query = query.Where(
			`(posts.title LIKE ? ESCAPE '\' OR posts.description LIKE ? ESCAPE '\' OR posts.content LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern,
		)
	}

	if names := NormalizeTagNames([]string{q.Tag}); len(names) > 0 {
		// 复用外层查询的会话（含 ctx），但不带它已有的条件
		subQuery := query.Session(&gorm.Session{NewDB: true}).
			Model(&db.Post{}).
			Select("posts.id").
			Joins("JOIN post_tags ON posts.id = post_tags.post_id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name = ?", names[0]).
			Distinct()

		query = query.Where("posts.id IN (?)", subQuery)
	}

	return query
}

func (s *PostService) reload(ctx context.Context, id uint) (*db.Post, error) {
	var post db.Post
	if err := s.db.WithContext(ctx).
		Preload("Tags", orderedTags).
		Preload("History", orderedHistory).
		First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, storageError("reload post", err)
	}
	return &post, nil
}

// attachTags 替换文章的标签集合并同步 post_count
func attachTags(tx *gorm.DB, post *db.Post, prevIDs []uint, tags []db.Tag) error {
	nextIDs := make([]uint, 0, len(tags))
	for _, tag := range tags {
		nextIDs = append(nextIDs, tag.ID)
	}
	added, removed := diffIDs(prevIDs, nextIDs)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	association := tx.Model(post).Association("Tags")
	var err error
	if len(tags) == 0 {
		err = association.Clear()
	} else {
		err = association.Replace(tags)
	}
	if err != nil {
		return storageError("attach tags", err)
	}
	post.Tags = tags
	return adjustPostCounts(tx, added, removed)
}

func findPostBySlug(query *gorm.DB, postSlug string) (*db.Post, error) {
	var post db.Post
	if err := query.Where("slug = ?", postSlug).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, storageError("find post", err)
	}
	return &post, nil
}

// ensureTitleFree 仅为预检查，以唯一索引为准
func ensureTitleFree(tx *gorm.DB, title string, excludeID uint) error {
	query := tx.Model(&db.Post{}).Where("title = ?", title)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return storageError("check title", err)
	}
	if count > 0 {
		return ErrPostTitleTaken
	}
	return nil
}

func ensureUserExists(tx *gorm.DB, userID uint) error {
	var count int64
	if err := tx.Model(&db.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return storageError("check user", err)
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

func validateTitle(verr *ValidationError, title string) {
	switch {
	case title == "":
		verr.Add("title", "Title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		verr.Add("title", "Title cannot exceed 100 characters")
	}
}

func validateDescription(verr *ValidationError, description string) {
	switch {
	case description == "":
		verr.Add("description", "Description is required")
	case utf8.RuneCountInString(description) > MaxDescriptionLength:
		verr.Add("description", "Description cannot exceed 200 characters")
	}
}

func visibleTo(post *db.Post, viewerID uint) bool {
	return post.Status == db.StatusPublished || (viewerID != 0 && post.UserID == viewerID)
}

func orderedTags(q *gorm.DB) *gorm.DB {
	return q.Order("tags.id asc")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
