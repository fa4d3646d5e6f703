package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"connect-go/internal/lock"
	"connect-go/internal/models"
	"connect-go/internal/storage"
	"connect-go/internal/storage/storagetest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RequestEvent
	err    error
}

func (p *recordingPublisher) PublishRequestEvent(_ context.Context, e models.RequestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []models.RequestEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RequestEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	ledger    ConnectionRequestService
	feed      FeedService
	conns     storage.ConnectionRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewTestDB(t)
	pub := &recordingPublisher{}
	return &fixture{
		db:        db,
		ledger:    NewConnectionRequestService(db, lock.NewLocalPairLocker(0), pub, nil),
		feed:      NewFeedService(db, nil),
		conns:     storage.NewGormConnectionRepository(db),
		publisher: pub,
	}
}

func (f *fixture) user(t *testing.T, name string) uint {
	return storagetest.CreateUser(t, f.db, name).ID
}

func (f *fixture) refs(t *testing.T, userID uint, role models.RequestRole) []uint {
	t.Helper()
	ids, err := f.conns.GetRequestRefIDs(context.Background(), userID, role)
	require.NoError(t, err)
	return ids
}

func (f *fixture) connections(t *testing.T, userID uint) []uint {
	t.Helper()
	ids, err := f.conns.GetConnectionIDs(context.Background(), userID)
	require.NoError(t, err)
	return ids
}

func (f *fixture) feedIDs(t *testing.T, userID uint) []uint {
	t.Helper()
	users, err := f.feed.ComputeFeed(context.Background(), userID)
	require.NoError(t, err)
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func (f *fixture) countRequests(t *testing.T, status models.RequestStatus) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.ConnectionRequest{}).Where("status = ?", status).Count(&n).Error)
	return n
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, uint, uint) (func(), error) {
	return nil, lock.ErrLockTimeout
}

var errBroker = errors.New("broker unavailable")

// noopLocker grants every lock immediately, as when two API instances each
// hold their own in-process lock.
type noopLocker struct{}

func (noopLocker) Lock(context.Context, uint, uint) (func(), error) {
	return func() {}, nil
}
