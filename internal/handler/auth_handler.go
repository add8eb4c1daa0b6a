package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/db"
	"github.com/inkwell/internal/service"
)

type signupRequest struct {
	Fullname string `json:"fullname" binding:"required,min=3,max=30,fullname"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,strongpassword"`
}

type signinRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type sessionResponse struct {
	User        *db.User  `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Signup 注册新用户并建立会话
func (a *API) Signup(c *gin.Context) {
	var req signupRequest
	if !a.bindJSON(c, &req) {
		return
	}

	user, err := a.users.Signup(c.Request.Context(), service.SignupInput{
		Fullname: req.Fullname,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	token, expires, err := a.startSession(c, user.ID, user.Username)
	if err != nil {
		a.fail(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "User registered successfully", sessionResponse{User: user, AccessToken: token, ExpiresAt: expires})
}

// Signin 处理用户登录请求
func (a *API) Signin(c *gin.Context) {
	var req signinRequest
	if !a.bindJSON(c, &req) {
		return
	}

	user, err := a.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}

	token, expires, err := a.startSession(c, user.ID, user.Username)
	if err != nil {
		a.fail(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Signed in successfully", sessionResponse{User: user, AccessToken: token, ExpiresAt: expires})
}

// Signout 清除会话
func (a *API) Signout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		a.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Signed out successfully", nil)
}

// VerifyToken 确认调用方令牌有效
func (a *API) VerifyToken(c *gin.Context) {
	username, _ := c.Get(usernameKey)
	respondOK(c, http.StatusOK, "Token is valid", gin.H{
		"userId":   currentUserID(c),
		"username": username,
	})
}
