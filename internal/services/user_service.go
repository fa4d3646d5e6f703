package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"connect-go/internal/auth"
	"connect-go/internal/models"
	"connect-go/internal/storage"
)

// ProfileUpdate carries the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Age       *int
	Gender    *models.Gender
	PhotoURL  *string
	About     *string
	Skills    []string // nil 表示不修改
}

// UserService 定义了用户资料相关服务的接口。
type UserService interface {
	GetProfile(ctx context.Context, userID uint) (*models.UserPublic, error)
	UpdateProfile(ctx context.Context, actingUserID, targetUserID uint, update ProfileUpdate) (*models.UserPublic, error)
	ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo storage.UserRepository
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// GetProfile 获取用户公开的个人资料。
func (s *userService) GetProfile(ctx context.Context, userID uint) (*models.UserPublic, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := user.Public()
	return &p, nil
}

// UpdateProfile 更新用户的个人资料，只能修改自己的资料。
func (s *userService) UpdateProfile(ctx context.Context, actingUserID, targetUserID uint, update ProfileUpdate) (*models.UserPublic, error) {
	if actingUserID != targetUserID {
		return nil, ErrNotProfileOwner
	}
	user, err := s.loadUser(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	if update.Email != nil {
		email := NormalizeEmail(*update.Email)
		if email != user.Email {
			other, err := s.userRepo.GetByEmail(ctx, email)
			if err == nil && other.ID != user.ID {
				return nil, ErrEmailTaken
			} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, storeErr("check email", err)
			}
			user.Email = email
		}
	}
	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Age != nil {
		user.Age = update.Age
	}
	if update.Gender != nil {
		user.Gender = *update.Gender
	}
	if update.PhotoURL != nil {
		user.PhotoURL = *update.PhotoURL
	}
	if update.About != nil {
		user.About = *update.About
	}
	if update.Skills != nil {
		user.Skills = cleanSkills(update.Skills)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, storeErr("update user", err)
	}
	p := user.Public()
	return &p, nil
}

// ChangePassword 校验当前密码后设置新密码。
func (s *userService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("密码哈希失败: %w", err)
	}
	user.PasswordHash = hash
	if err := s.userRepo.Update(ctx, user); err != nil {
		return storeErr("update password", err)
	}
	return nil
}

func (s *userService) loadUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, storeErr("load user", err)
	}
	return user, nil
}
