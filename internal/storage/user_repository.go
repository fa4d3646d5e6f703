package storage

import (
	"context"

	"gorm.io/gorm"

	"connect-go/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	GetMultipleByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	ListFeedCandidates(ctx context.Context, userID uint) ([]models.User, error)
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err // Handles gorm.ErrRecordNotFound as well
	}
	return &user, nil
}

// GetByEmail retrieves a user by their normalized email.
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update saves every column of an existing user.
func (r *gormUserRepository) Update(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return gorm.ErrMissingWhereClause
	}
	return r.db.WithContext(ctx).Save(user).Error
}

// GetMultipleByIDs retrieves the users with the given ids, ordered by id.
func (r *gormUserRepository) GetMultipleByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&users).Error
	if err != nil {
		// Don't return ErrRecordNotFound for batch fetches
		return nil, err
	}
	return users, nil
}

// ListFeedCandidates returns, ordered by id, every user other than userID that
// is not connected to userID, has no pending request from userID, and shares
// no ignored request with userID in either direction.
// 排除条件全部以子查询形式交给数据库，参数个数与连接数无关。
func (r *gormUserRepository) ListFeedCandidates(ctx context.Context, userID uint) ([]models.User, error) {
	connected := r.db.Model(&models.UserConnection{}).
		Select("peer_id").
		Where("user_id = ?", userID)
	pendingSent := r.db.Model(&models.ConnectionRequest{}).
		Select("recipient_id").
		Where("sender_id = ? AND status = ?", userID, models.RequestStatusPending)
	ignoredSent := r.db.Model(&models.ConnectionRequest{}).
		Select("recipient_id").
		Where("sender_id = ? AND status = ?", userID, models.RequestStatusIgnored)
	ignoredReceived := r.db.Model(&models.ConnectionRequest{}).
		Select("sender_id").
		Where("recipient_id = ? AND status = ?", userID, models.RequestStatusIgnored)

	users := []models.User{}
	err := r.db.WithContext(ctx).
		Where("id <> ?", userID).
		Where("id NOT IN (?)", connected).
		Where("id NOT IN (?)", pendingSent).
		Where("id NOT IN (?)", ignoredSent).
		Where("id NOT IN (?)", ignoredReceived).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
