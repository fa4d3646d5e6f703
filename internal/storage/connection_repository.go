package storage

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"connect-go/internal/models"
)

// ConnectionRepository stores the per-user relationship lists: the
// user_connections edges and the user_request_refs active request lists.
// Callers outside services.GraphMutator and the request ledger should only
// use the read methods.
type ConnectionRepository interface {
	AddConnection(ctx context.Context, userID, peerID uint) error
	AreConnected(ctx context.Context, userID, peerID uint) (bool, error)
	GetConnectionIDs(ctx context.Context, userID uint) ([]uint, error)

	AddRequestRef(ctx context.Context, ref *models.UserRequestRef) error
	RemoveRequestRefs(ctx context.Context, requestID uint) (int64, error)
	GetRequestRefIDs(ctx context.Context, userID uint, role models.RequestRole) ([]uint, error)
}

type gormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GORM-based ConnectionRepository.
func NewGormConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

// AddConnection inserts the (userID, peerID) edge, doing nothing when it
// already exists.
func (r *gormConnectionRepository) AddConnection(ctx context.Context, userID, peerID uint) error {
	edge := models.UserConnection{UserID: userID, PeerID: peerID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edge).Error
}

// AreConnected checks whether the (userID, peerID) edge exists.
func (r *gormConnectionRepository) AreConnected(ctx context.Context, userID, peerID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserConnection{}).
		Where("user_id = ? AND peer_id = ?", userID, peerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetConnectionIDs lists the peers of userID.
func (r *gormConnectionRepository) GetConnectionIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.UserConnection{}).
		Where("user_id = ?", userID).
		Order("peer_id").
		Pluck("peer_id", &ids).Error
	return ids, err
}

func (r *gormConnectionRepository) AddRequestRef(ctx context.Context, ref *models.UserRequestRef) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ref).Error
}

// RemoveRequestRefs drops the request from every user's active lists and
// returns how many entries were removed.
func (r *gormConnectionRepository) RemoveRequestRefs(ctx context.Context, requestID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Delete(&models.UserRequestRef{})
	return res.RowsAffected, res.Error
}

// GetRequestRefIDs lists the request ids on one of userID's active lists.
func (r *gormConnectionRepository) GetRequestRefIDs(ctx context.Context, userID uint, role models.RequestRole) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.UserRequestRef{}).
		Where("user_id = ? AND role = ?", userID, role).
		Order("request_id").
		Pluck("request_id", &ids).Error
	return ids, err
}
