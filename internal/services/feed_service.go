package services

import (
	"context"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"connect-go/internal/metrics"
	"connect-go/internal/models"
	"connect-go/internal/storage"
)

// FeedService computes discovery feeds and connection lists. It never writes.
type FeedService interface {
	ComputeFeed(ctx context.Context, userID uint) ([]models.UserPublic, error)
	ListConnections(ctx context.Context, userID uint) ([]models.UserPublic, error)
}

type feedService struct {
	userRepo storage.UserRepository
	connRepo storage.ConnectionRepository
	metrics  *metrics.Metrics
}

// NewFeedService 创建一个新的 FeedService 实例。
func NewFeedService(db *gorm.DB, m *metrics.Metrics) FeedService {
	return &feedService{
		userRepo: storage.NewGormUserRepository(db),
		connRepo: storage.NewGormConnectionRepository(db),
		metrics:  m,
	}
}

// ComputeFeed returns every user except self, existing connections, the other
// side of any ignored request involving self, and recipients of self's pending
// requests. Senders of pending requests to self stay visible.
func (s *feedService) ComputeFeed(ctx context.Context, userID uint) ([]models.UserPublic, error) {
	var users []models.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return requireUser(gctx, s.userRepo, userID)
	})
	g.Go(func() (err error) {
		users, err = s.userRepo.ListFeedCandidates(gctx, userID)
		return wrapStore("list feed users", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.metrics.ObserveFeedSize(len(users))
	return models.PublicUsers(users), nil
}

// ListConnections returns the projections of userID's connections.
func (s *feedService) ListConnections(ctx context.Context, userID uint) ([]models.UserPublic, error) {
	if err := requireUser(ctx, s.userRepo, userID); err != nil {
		return nil, err
	}
	ids, err := s.connRepo.GetConnectionIDs(ctx, userID)
	if err != nil {
		return nil, storeErr("load connections", err)
	}
	users, err := s.userRepo.GetMultipleByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("load connected users", err)
	}
	return models.PublicUsers(users), nil
}

func wrapStore(op string, err error) error {
	if err != nil {
		return storeErr(op, err)
	}
	return nil
}
