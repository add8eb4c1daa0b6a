package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/service"
)

type createPostRequest struct {
	Title       string   `json:"title" binding:"required,max=100"`
	Description string   `json:"description" binding:"required,max=200"`
	Banner      string   `json:"banner" binding:"omitempty,max=2048"`
	Tags        []string `json:"tags" binding:"max=20"`
	Content     string   `json:"content"`
	Format      string   `json:"format" binding:"omitempty,oneof=html markdown"`
	Draft       *bool    `json:"draft"`
}

type updatePostRequest struct {
	Title       *string   `json:"title" binding:"omitempty,min=1,max=100"`
	Description *string   `json:"description" binding:"omitempty,min=1,max=200"`
	Banner      *string   `json:"banner" binding:"omitempty,max=2048"`
	Tags        *[]string `json:"tags" binding:"omitempty,max=20"`
	Content     *string   `json:"content"`
	Format      string    `json:"format" binding:"omitempty,oneof=html markdown"`
	Draft       *bool     `json:"draft"`
	Status      *string   `json:"status" binding:"omitempty,oneof=draft published archived"`
	Version     *int      `json:"version" binding:"omitempty,min=1"`
}

// GetPosts 获取文章列表，支持过滤、排序与分页
func (a *API) GetPosts(c *gin.Context) {
	query := service.PostQuery{
		Slug:     strings.TrimSpace(c.Query("slug")),
		Tag:      c.Query("tag"),
		Search:   c.Query("searchTerm"),
		Status:   strings.TrimSpace(c.Query("status")),
		SortBy:   strings.TrimSpace(c.Query("sortBy")),
		Order:    strings.TrimSpace(c.Query("order")),
		Latest:   parseBoolQuery(c, "latest"),
		ViewerID: currentUserID(c),
	}

	var err error
	if query.PostID, err = parseUintQuery(c, "postId"); err != nil {
		a.fail(c, err)
		return
	}
	if query.UserID, err = parseUintQuery(c, "userId"); err != nil {
		a.fail(c, err)
		return
	}
	if query.StartIndex, err = parseIntQuery(c, "startIndex"); err != nil {
		a.fail(c, err)
		return
	}
	if query.Limit, err = parseIntQuery(c, "limit"); err != nil {
		a.fail(c, err)
		return
	}

	result, err := a.posts.List(c.Request.Context(), query)
	if err != nil {
		a.fail(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Posts fetched successfully", gin.H{
		"posts":      result.Posts,
		"total":      result.Total,
		"startIndex": result.StartIndex,
		"limit":      result.Limit,
	})
}

// GetPost 获取单篇文章并累计阅读数
func (a *API) GetPost(c *gin.Context) {
	post, err := a.posts.Read(c.Request.Context(), c.Param("slug"), currentUserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Post fetched successfully", post)
}

// GetPostHistory 列出文章的全部历史版本
func (a *API) GetPostHistory(c *gin.Context) {
	history, err := a.posts.History(c.Request.Context(), c.Param("slug"), currentUserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Post history fetched successfully", history)
}

// CreatePost 创建文章
func (a *API) CreatePost(c *gin.Context) {
	var req createPostRequest
	if !a.bindJSON(c, &req) {
		return
	}

	post, err := a.posts.Create(c.Request.Context(), service.PostInput{
		UserID:      currentUserID(c),
		Title:       req.Title,
		Description: req.Description,
		Banner:      req.Banner,
		Content:     req.Content,
		Format:      req.Format,
		Tags:        req.Tags,
		Draft:       req.Draft,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Post created successfully", post)
}

// UpdatePost 部分更新文章，未提供的字段保持不变
func (a *API) UpdatePost(c *gin.Context) {
	var req updatePostRequest
	if !a.bindJSON(c, &req) {
		return
	}

	post, err := a.posts.Update(c.Request.Context(), c.Param("slug"), currentUserID(c), service.PostPatch{
		Title:           req.Title,
		Description:     req.Description,
		Banner:          req.Banner,
		Content:         req.Content,
		Format:          req.Format,
		Tags:            req.Tags,
		Draft:           req.Draft,
		Status:          req.Status,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Post updated successfully", post)
}

// DeletePost 删除文章并回收不再使用的标签
func (a *API) DeletePost(c *gin.Context) {
	postSlug := strings.TrimSpace(c.Query("slug"))
	if postSlug == "" {
		a.fail(c, fieldError("slug", "slug is required"))
		return
	}

	result, err := a.posts.Delete(c.Request.Context(), postSlug, currentUserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}

	data := gin.H{
		"slug":        result.Slug,
		"deletedTags": len(result.TagGC.Deleted),
	}
	message := "Post deleted successfully"
	if result.GCError != nil {
		message = "Post deleted, some tags will be cleaned up later"
		data["pendingTagIds"] = result.TagGC.Failed
	}
	respondOK(c, http.StatusOK, message, data)
}

// GetImageUploadURL 签发一次性的图片上传地址
func (a *API) GetImageUploadURL(c *gin.Context) {
	if a.uploads == nil {
		respondError(c, http.StatusServiceUnavailable, "Uploads are not configured")
		return
	}
	respondOK(c, http.StatusOK, "Upload URL generated successfully", a.uploads.SignUpload())
}
