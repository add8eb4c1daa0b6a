package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell/internal/auth"
	"github.com/inkwell/internal/db"
	"github.com/inkwell/internal/handler"
	"github.com/inkwell/internal/logger"
	"github.com/inkwell/internal/metrics"
	"github.com/inkwell/internal/service"
	"github.com/inkwell/internal/storage"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(t *testing.T, h http.Handler) *localClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &localClient{handler: h, jar: jar}
}

func (c *localClient) do(t *testing.T, method, target string, payload any) (*http.Response, envelope) {
	t.Helper()

	var body io.Reader
	if raw, ok := payload.([]byte); ok {
		body = bytes.NewReader(raw)
	} else if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	if strings.HasPrefix(target, "/") {
		target = "http://example.com" + target
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range c.jar.Cookies(req.URL) {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	c.jar.SetCookies(req.URL, resp.Cookies())

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("failed to decode %s %s response %q: %v", method, target, w.Body.String(), err)
		}
	}
	return resp, env
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func setupEngine(t *testing.T) (http.Handler, *storage.LocalStore) {
	t.Helper()
	r, opts, uploads := buildEngine(t, 30*time.Second)
	return WithTimeout(r, opts), uploads
}

func buildEngine(t *testing.T, timeout time.Duration) (*gin.Engine, Options, *storage.LocalStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	tokens, err := auth.NewTokenIssuer("router-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	uploads, err := storage.NewLocalStore(storage.Config{
		Dir:     filepath.Join(t.TempDir(), "uploads"),
		URLPath: "/uploads",
		Secret:  "upload-secret",
		TTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create upload store: %v", err)
	}

	m := metrics.New()
	api := handler.NewAPI(gdb, tokens, uploads, m, handler.Options{}).
		WithUserService(service.NewUserService(gdb).WithHashCost(bcrypt.MinCost))

	opts := Options{
		SessionName:    "user_token",
		SessionSecret:  "session-secret",
		SessionMaxAge:  time.Hour,
		RequestTimeout: timeout,
		Logger:         logger.Discard(),
		Metrics:        m,
	}
	return SetupRouter(api, opts), opts, uploads
}

func signUp(t *testing.T, client *localClient, email string) {
	t.Helper()
	resp, env := client.do(t, http.MethodPost, "/api/auth/signup", map[string]any{
		"fullname": "Test User",
		"email":    email,
		"password": "Secret#123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup failed with %d: %s", resp.StatusCode, env.Message)
	}
}

func TestBlogFlow(t *testing.T) {
	r, _ := setupEngine(t)
	author := newLocalClient(t, r)
	anonymous := newLocalClient(t, r)
	signUp(t, author, "author@example.com")

	// unauthenticated create
	resp, env := anonymous.do(t, http.MethodPost, "/api/blog/create", map[string]any{"title": "Nope", "description": "d"})
	if resp.StatusCode != http.StatusUnauthorized || env.Message != "Unauthorized" || env.Success {
		t.Fatalf("expected 401 Unauthorized, got %d %q", resp.StatusCode, env.Message)
	}

	resp, env = author.do(t, http.MethodPost, "/api/blog/create", map[string]any{
		"title":       "Test Post",
		"description": "Test description",
		"content":     "Test content",
		"tags":        []string{"test", "nodejs"},
		"draft":       false,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, env.Message)
	}
	var created db.Post
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("failed to decode post: %v", err)
	}
	if len(created.Tags) != 2 || created.Tags[0].Name != "test" || created.Tags[1].Name != "nodejs" {
		t.Fatalf("unexpected tags: %+v", created.Tags)
	}

	resp, _ = author.do(t, http.MethodPost, "/api/blog/create", map[string]any{"title": "Another Post", "description": "d", "draft": false})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for second post, got %d", resp.StatusCode)
	}

	// colliding update
	resp, env = author.do(t, http.MethodPut, "/api/blog/update/another-post", map[string]any{"title": "Test Post"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, env.Message)
	}

	resp, env = anonymous.do(t, http.MethodGet, "/api/blog/getPosts?tag=nodejs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Posts []db.Post `json:"posts"`
		Total int64     `json:"total"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if list.Total != 1 || list.Posts[0].Slug != "test-post" {
		t.Fatalf("unexpected listing: %+v", list)
	}

	resp, env = anonymous.do(t, http.MethodGet, "/api/blog/getPost/test-post", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var read db.Post
	_ = json.Unmarshal(env.Data, &read)
	if read.TotalReads != 1 || len(read.History) != read.Version {
		t.Fatalf("unexpected read: %+v", read)
	}

	// deleting a missing slug
	resp, _ = author.do(t, http.MethodDelete, "/api/blog/remove?slug=does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = author.do(t, http.MethodDelete, "/api/blog/remove?slug=test-post", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, env = anonymous.do(t, http.MethodGet, "/api/blog/getTags", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tags []db.Tag
	_ = json.Unmarshal(env.Data, &tags)
	if len(tags) != 0 {
		t.Fatalf("expected orphan tags collected, got %+v", tags)
	}
}

func TestOwnershipAcrossUsers(t *testing.T) {
	r, _ := setupEngine(t)
	alice := newLocalClient(t, r)
	bob := newLocalClient(t, r)
	signUp(t, alice, "alice@example.com")
	signUp(t, bob, "bob@example.com")

	resp, _ := alice.do(t, http.MethodPost, "/api/blog/create", map[string]any{"title": "Alice Post", "description": "d"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, _ = bob.do(t, http.MethodDelete, "/api/blog/remove?slug=alice-post", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	// drafts stay private
	resp, _ = bob.do(t, http.MethodGet, "/api/blog/getPost/alice-post", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected draft hidden from bob, got %d", resp.StatusCode)
	}
	resp, _ = alice.do(t, http.MethodGet, "/api/blog/getPostHistory/alice-post", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected owner to read history, got %d", resp.StatusCode)
	}
}

func TestSignedUploadFlow(t *testing.T) {
	r, _ := setupEngine(t)
	client := newLocalClient(t, r)

	resp, _ := client.do(t, http.MethodGet, "/api/blog/getImageUploadUrl", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	signUp(t, client, "uploader@example.com")
	resp, env := client.do(t, http.MethodGet, "/api/blog/getImageUploadUrl", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var signed storage.SignedUpload
	if err := json.Unmarshal(env.Data, &signed); err != nil {
		t.Fatalf("failed to decode upload url: %v", err)
	}

	uploadURL, err := url.Parse(signed.UploadURL)
	if err != nil {
		t.Fatalf("invalid upload url: %v", err)
	}
	target := uploadURL.RequestURI()

	resp, _ = client.do(t, http.MethodPut, strings.Replace(target, "signature=", "signature=00", 1), []byte("x"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for tampered signature, got %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	resp, _ = client.do(t, http.MethodPut, target, buf.Bytes())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, _ = client.do(t, http.MethodGet, "/uploads/"+signed.Key, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected stored file served, got %d", resp.StatusCode)
	}
}

func TestMiscRoutes(t *testing.T) {
	r, _ := setupEngine(t)
	client := newLocalClient(t, r)

	if resp, _ := client.do(t, http.MethodGet, "/ping", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ping 200, got %d", resp.StatusCode)
	}
	if resp, _ := client.do(t, http.MethodGet, "/favicon.ico", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected favicon 204, got %d", resp.StatusCode)
	}
	resp, env := client.do(t, http.MethodGet, "/nowhere", nil)
	if resp.StatusCode != http.StatusNotFound || env.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 body, got %d %+v", resp.StatusCode, env)
	}
	if resp, _ := client.do(t, http.MethodGet, "/metrics", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", resp.StatusCode)
	}
}

func TestSlowRequestAnswersTimeout(t *testing.T) {
	r, opts, _ := buildEngine(t, 20*time.Millisecond)

	release := make(chan struct{})
	finished := make(chan struct{})
	r.GET("/api/slow", func(c *gin.Context) {
		defer close(finished)
		select {
		case <-release:
		case <-time.After(3 * time.Second):
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "too late"})
	})
	client := newLocalClient(t, WithTimeout(r, opts))

	start := time.Now()
	resp, env := client.do(t, http.MethodGet, "/api/slow", nil)
	elapsed := time.Since(start)
	close(release)
	<-finished

	if resp.StatusCode != http.StatusRequestTimeout || env.Success {
		t.Fatalf("expected 408 envelope, got %d %+v", resp.StatusCode, env)
	}
	if env.Message != service.ErrTimeout.Error() || env.StatusCode != http.StatusRequestTimeout {
		t.Fatalf("unexpected timeout body: %+v", env)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timeout response waited for the handler: %v", elapsed)
	}
}

func TestFastRequestPassesThroughTimeout(t *testing.T) {
	r, opts, _ := buildEngine(t, time.Second)
	client := newLocalClient(t, WithTimeout(r, opts))

	resp, env := client.do(t, http.MethodPost, "/api/auth/signup", map[string]any{
		"fullname": "Jane Doe",
		"email":    "jane@example.com",
		"password": "Secret#123",
	})
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("expected 201, got %d %+v", resp.StatusCode, env)
	}
	if len(resp.Cookies()) == 0 {
		t.Fatalf("expected session cookie to survive the timeout buffer")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header to survive the timeout buffer")
	}
}
