package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/service"
)

type updateUserRequest struct {
	Fullname   *string `json:"fullname" binding:"omitempty,min=3,max=30,fullname"`
	Username   *string `json:"username" binding:"omitempty,min=3,max=64"`
	ProfileImg *string `json:"profileImg" binding:"omitempty,max=2048"`
}

// GetSignedInUser 返回当前登录用户
func (a *API) GetSignedInUser(c *gin.Context) {
	user, err := a.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, "User fetched successfully", user)
}

// UpdateSignedInUser 更新当前用户的个人资料
func (a *API) UpdateSignedInUser(c *gin.Context) {
	var req updateUserRequest
	if !a.bindJSON(c, &req) {
		return
	}

	user, err := a.users.UpdateProfile(c.Request.Context(), currentUserID(c), service.ProfileUpdate{
		Fullname:   req.Fullname,
		Username:   req.Username,
		ProfileImg: req.ProfileImg,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, "User updated successfully", user)
}
