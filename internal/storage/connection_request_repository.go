package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"connect-go/internal/models"
)

// ConnectionRequestRepository defines the interface for connection request data operations.
type ConnectionRequestRepository interface {
	Create(ctx context.Context, request *models.ConnectionRequest) error
	GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error)
	GetMultipleByIDs(ctx context.Context, requestIDs []uint) ([]models.ConnectionRequest, error)
	FindPendingBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionRequest, error)
	UpdateStatusIfPending(ctx context.Context, requestID uint, status models.RequestStatus) (bool, error)
	ListByRecipient(ctx context.Context, recipientID uint, status models.RequestStatus) ([]models.ConnectionRequest, error)
}

type gormConnectionRequestRepository struct {
	db *gorm.DB
}

// NewGormConnectionRequestRepository creates a new GORM-based ConnectionRequestRepository.
func NewGormConnectionRequestRepository(db *gorm.DB) ConnectionRequestRepository {
	return &gormConnectionRequestRepository{db: db}
}

// Create inserts the request. EnsureCanonicalOrder is applied first so the
// pending-pair index always sees sorted ids.
func (r *gormConnectionRequestRepository) Create(ctx context.Context, request *models.ConnectionRequest) error {
	request.EnsureCanonicalOrder()
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *gormConnectionRequestRepository) GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := r.db.WithContext(ctx).First(&request, requestID).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *gormConnectionRequestRepository) GetMultipleByIDs(ctx context.Context, requestIDs []uint) ([]models.ConnectionRequest, error) {
	requests := []models.ConnectionRequest{}
	if len(requestIDs) == 0 {
		return requests, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", requestIDs).Order("id").Find(&requests).Error
	return requests, err
}

// FindPendingBetween checks if there is a pending request between two users
// (in either direction). It returns nil, nil when there is none.
func (r *gormConnectionRequestRepository) FindPendingBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionRequest, error) {
	low, high := models.CanonicalPair(userID1, userID2)
	var request models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ? AND status = ?", low, high, models.RequestStatusPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // No pending request found is not an error in this context
		}
		return nil, err
	}
	return &request, nil
}

// UpdateStatusIfPending moves a pending request to status. It reports false
// when the request was no longer pending, so two concurrent transitions can
// never both succeed.
func (r *gormConnectionRequestRepository) UpdateStatusIfPending(ctx context.Context, requestID uint, status models.RequestStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ConnectionRequest{}).
		Where("id = ? AND status = ?", requestID, models.RequestStatusPending).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormConnectionRequestRepository) ListByRecipient(ctx context.Context, recipientID uint, status models.RequestStatus) ([]models.ConnectionRequest, error) {
	requests := []models.ConnectionRequest{}
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status = ?", recipientID, status).
		Order("id").
		Find(&requests).Error
	return requests, err
}
