// Package storage 将上传的封面图保存在本地磁盘，
// 通过限时签名的上传地址写入
package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

var (
	ErrInvalidKey       = errors.New("invalid upload key")
	ErrBadSignature     = errors.New("upload signature mismatch")
	ErrExpired          = errors.New("upload url expired")
	ErrTooLarge         = errors.New("upload exceeds size limit")
	ErrNotImage         = errors.New("upload is not a supported image")
	ErrAlreadyUploaded  = errors.New("upload key already used")
	ErrMissingSecret    = errors.New("upload secret is empty")
	allowedImageFormats = map[string]bool{"png": true, "jpeg": true, "gif": true, "webp": true}
	keyPattern          = regexp.MustCompile(`^[0-9]{8}-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Config 上传目录及 URL 构造配置
type Config struct {
	Dir      string
	URLPath  string
	BaseURL  string
	Secret   string
	TTL      time.Duration
	MaxBytes int64
}

// SignedUpload 交给客户端用于 PUT 单张图片
type SignedUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	FileURL   string    `json:"fileUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LocalStore 基于本地文件系统的对象存储
type LocalStore struct {
	cfg Config
	now func() time.Time
}

// NewLocalStore 创建上传目录并返回存储实例
func NewLocalStore(cfg Config) (*LocalStore, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.Dir == "" {
		cfg.Dir = "data/uploads"
	}
	if cfg.URLPath == "" {
		cfg.URLPath = "/uploads"
	}
	cfg.URLPath = "/" + strings.Trim(cfg.URLPath, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{cfg: cfg, now: time.Now}, nil
}

// Dir is the directory stored files are served from.
func (s *LocalStore) Dir() string { return s.cfg.Dir }

// URLPath is the route prefix of stored files.
func (s *LocalStore) URLPath() string { return s.cfg.URLPath }

// MaxBytes is the largest accepted upload.
func (s *LocalStore) MaxBytes() int64 { return s.cfg.MaxBytes }

// SignUpload 生成新的 key 并签名上传地址
func (s *LocalStore) SignUpload() SignedUpload {
	key := fmt.Sprintf("%s-%s", s.now().UTC().Format("20060102"), uuid.NewString())
	expires := s.now().Add(s.cfg.TTL).Unix()

	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("signature", s.sign(key, expires))

	path := s.cfg.URLPath + "/" + key
	return SignedUpload{
		Key:       key,
		UploadURL: s.cfg.BaseURL + path + "?" + query.Encode(),
		FileURL:   s.cfg.BaseURL + path,
		ExpiresAt: time.Unix(expires, 0).UTC(),
	}
}

// Verify 校验上传请求的签名与过期时间
func (s *LocalStore) Verify(key, expires, signature string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal([]byte(s.sign(key, exp)), []byte(signature)) {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrExpired
	}
	return nil
}

// Save 以 key 写入一次内容，返回识别出的图片格式
func (s *LocalStore) Save(ctx context.Context, key string, body io.Reader) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", ErrInvalidKey
	}

	data, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || !allowedImageFormats[format] {
		return "", ErrNotImage
	}

	f, err := os.OpenFile(filepath.Join(s.cfg.Dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", ErrAlreadyUploaded
		}
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	return format, nil
}

func (s *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	fmt.Fprintf(mac, "%s:%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
