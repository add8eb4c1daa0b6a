package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetTags 获取热门标签列表
func (a *API) GetTags(c *gin.Context) {
	limit, err := parseIntQuery(c, "limit")
	if err != nil {
		a.fail(c, err)
		return
	}

	tags, err := a.tags.List(c.Request.Context(), limit)
	if err != nil {
		a.fail(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Tags fetched successfully", tags)
}
