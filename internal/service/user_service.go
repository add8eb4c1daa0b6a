package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/inkwell/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	MinFullnameLength = 3
	MaxFullnameLength = 30
	MinPasswordLength = 8
	maxUsernameLength = 64
)

var (
	fullnamePattern = regexp.MustCompile(`^[a-zA-Z\s]*$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,64}$`)
)

// UserService 负责账号注册、登录校验与个人资料维护
type UserService struct {
	db   *gorm.DB
	cost int
}

// SignupInput 注册时接受的字段
type SignupInput struct {
	Fullname string
	Email    string
	Password string
}

// ProfileUpdate 局部资料更新，nil 字段保持不变
type ProfileUpdate struct {
	Fullname   *string
	Username   *string
	ProfileImg *string
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb, cost: bcrypt.DefaultCost}
}

// WithHashCost 设置新密码使用的 bcrypt 成本
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// ValidFullname 判断姓名是否为 3-30 位字母和空格
func ValidFullname(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= MinFullnameLength && n <= MaxFullnameLength && fullnamePattern.MatchString(name)
}

// StrongPassword 要求至少 8 位且包含大小写字母、数字和符号
func StrongPassword(password string) bool {
	if len(password) < MinPasswordLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// NormalizeEmail 去除空白并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup 创建账户。用户名取邮箱本地部分，
// 已被占用时追加随机后缀
func (s *UserService) Signup(ctx context.Context, input SignupInput) (*db.User, error) {
	fullname := strings.TrimSpace(input.Fullname)
	email := NormalizeEmail(input.Email)

	verr := &ValidationError{}
	if !ValidFullname(fullname) {
		verr.Add("fullname", "Fullname must be 3-30 characters and contain only letters and spaces")
	}
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		verr.Add("email", "Invalid email format")
	}
	if !StrongPassword(input.Password) {
		verr.Add("password", "Password must contain at least one uppercase letter, one lowercase letter, one number and one special character")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, err
	}

	user := db.User{Fullname: fullname, Email: email, Password: string(hashed)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return storageError("check email", err)
		}
		if count > 0 {
			return ErrEmailTaken
		}

		username, err := s.availableUsername(tx, email)
		if err != nil {
			return err
		}
		user.Username = username

		if err := tx.Create(&user).Error; err != nil {
			return userWriteError("create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) availableUsername(tx *gorm.DB, email string) (string, error) {
	base := strings.SplitN(email, "@", 2)[0]
	if len(base) > maxUsernameLength-17 {
		base = base[:maxUsernameLength-17]
	}

	var count int64
	if err := tx.Model(&db.User{}).Where("username = ?", base).Count(&count).Error; err != nil {
		return "", storageError("check username", err)
	}
	if count == 0 {
		return base, nil
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return base + suffix, nil
}

// Authenticate 校验凭证，邮箱不存在与密码错误返回相同错误
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*db.User, error) {
	var user db.User
	if err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storageError("find user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get 根据主键获取用户
func (s *UserService) Get(ctx context.Context, id uint) (*db.User, error) {
	var user db.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storageError("get user", err)
	}
	return &user, nil
}

// UpdateProfile 更新提供的资料字段
func (s *UserService) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*db.User, error) {
	updates := map[string]interface{}{}
	verr := &ValidationError{}

	if update.Fullname != nil {
		fullname := strings.TrimSpace(*update.Fullname)
		if !ValidFullname(fullname) {
			verr.Add("fullname", "Fullname must be 3-30 characters and contain only letters and spaces")
		}
		updates["fullname"] = fullname
	}
	if update.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*update.Username))
		if !usernamePattern.MatchString(username) {
			verr.Add("username", "Username must be 3-64 characters of letters, digits, dots, dashes or underscores")
		}
		updates["username"] = username
	}
	if update.ProfileImg != nil {
		updates["profile_img"] = strings.TrimSpace(*update.ProfileImg)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, userWriteError("update profile", err)
	}
	return s.Get(ctx, id)
}

// EnsureUser 邮箱不存在时创建账户，
// 返回是否新建了用户
func (s *UserService) EnsureUser(ctx context.Context, input SignupInput) (*db.User, bool, error) {
	var existing db.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(input.Email)).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, storageError("find user", err)
	}

	user, err := s.Signup(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func userWriteError(op string, err error) error {
	switch {
	case db.ViolatesUnique(err, "users.email"):
		return ErrEmailTaken
	case db.ViolatesUnique(err, "users.username"):
		return ErrUsernameTaken
	default:
		return storageError(op, err)
	}
}
