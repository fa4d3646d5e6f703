package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"connect-go/internal/lock"
	"connect-go/internal/metrics"
	"connect-go/internal/models"
	"connect-go/internal/storage"
)

// EventPublisher 在请求创建或状态变更提交后接收生命周期事件。
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, event models.RequestEvent) error
}

// ConnectionRequestService is the request ledger: it owns the connection request
// state machine and the per-user active request lists.
type ConnectionRequestService interface {
	CreateRequest(ctx context.Context, senderID, recipientID uint) (*models.ConnectionRequest, error)
	Transition(ctx context.Context, requestID, actingUserID uint, newStatus models.RequestStatus) (*models.ConnectionRequest, error)
	GetRequest(ctx context.Context, requestID, actingUserID uint) (*models.ConnectionRequest, error)
	ListReceived(ctx context.Context, userID uint) ([]models.RequestWithUser, error)
	ListSent(ctx context.Context, userID uint) ([]models.RequestWithUser, error)
	ListAcceptedSenders(ctx context.Context, userID uint) ([]models.UserPublic, error)
	Reconcile(ctx context.Context, requestID uint) error
}

type connectionRequestService struct {
	db          *gorm.DB // 用于事务
	userRepo    storage.UserRepository
	requestRepo storage.ConnectionRequestRepository
	connRepo    storage.ConnectionRepository
	locker      lock.PairLocker
	publisher   EventPublisher
	metrics     *metrics.Metrics
}

// NewConnectionRequestService creates the ledger. publisher and m may be nil.
func NewConnectionRequestService(
	db *gorm.DB,
	locker lock.PairLocker,
	publisher EventPublisher,
	m *metrics.Metrics,
) ConnectionRequestService {
	if locker == nil {
		locker = lock.NewLocalPairLocker(0)
	}
	return &connectionRequestService{
		db:          db,
		userRepo:    storage.NewGormUserRepository(db),
		requestRepo: storage.NewGormConnectionRequestRepository(db),
		connRepo:    storage.NewGormConnectionRepository(db),
		locker:      locker,
		publisher:   publisher,
		metrics:     m,
	}
}

// CreateRequest records a pending request from sender to recipient.
// Checks run in order and the first failure wins.
func (s *connectionRequestService) CreateRequest(ctx context.Context, senderID, recipientID uint) (req *models.ConnectionRequest, err error) {
	defer func() { s.metrics.ObserveRequestOp("create", outcomeOf(err)) }()

	unlock, err := s.locker.Lock(ctx, senderID, recipientID)
	if err != nil {
		return nil, storeErr("acquire pair lock", err)
	}
	defer unlock()

	request := &models.ConnectionRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      models.RequestStatusPending,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUserRepo := storage.NewGormUserRepository(tx)
		txRequestRepo := storage.NewGormConnectionRequestRepository(tx)
		txConnRepo := storage.NewGormConnectionRepository(tx)

		// 1. 双方都必须存在
		for _, id := range []uint{senderID, recipientID} {
			if err := requireUser(ctx, txUserRepo, id); err != nil {
				return err
			}
		}

		// 2. 不能向自己发送请求
		if senderID == recipientID {
			return ErrSelfRequest
		}

		// 3. 任一方向都不能已有待处理请求
		existing, err := txRequestRepo.FindPendingBetween(ctx, senderID, recipientID)
		if err != nil {
			return storeErr("find pending request", err)
		}
		if existing != nil {
			return ErrAlreadyPending
		}

		// 4. 不能已经是连接关系
		connected, err := txConnRepo.AreConnected(ctx, senderID, recipientID)
		if err != nil {
			return storeErr("check connection", err)
		}
		if connected {
			return ErrAlreadyConnected
		}

		if err := txRequestRepo.Create(ctx, request); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// 另一实例抢先插入，由部分唯一索引拦截
				return ErrAlreadyPending
			}
			return storeErr("create request", err)
		}

		refs := []models.UserRequestRef{
			{UserID: senderID, RequestID: request.ID, Role: models.RoleSent},
			{UserID: recipientID, RequestID: request.ID, Role: models.RoleReceived},
		}
		for i := range refs {
			if err := txConnRepo.AddRequestRef(ctx, &refs[i]); err != nil {
				return storeErr("add request ref", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	log.Printf("Connection request %d created: %d -> %d", request.ID, senderID, recipientID)
	s.publish(ctx, request)
	return request, nil
}

// Transition resolves a pending request. The status change, ref cleanup and,
// for accepted, the new connection commit together or not at all.
func (s *connectionRequestService) Transition(ctx context.Context, requestID, actingUserID uint, newStatus models.RequestStatus) (req *models.ConnectionRequest, err error) {
	defer func() { s.metrics.ObserveRequestOp(string(newStatus), outcomeOf(err)) }()

	if !models.CanTransition(models.RequestStatusPending, newStatus) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	var request *models.ConnectionRequest
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRequestRepo := storage.NewGormConnectionRequestRepository(tx)
		txConnRepo := storage.NewGormConnectionRepository(tx)

		var err error
		request, err = getRequest(ctx, txRequestRepo, requestID)
		if err != nil {
			return err
		}
		if request.Status != models.RequestStatusPending {
			return ErrRequestResolved
		}

		required, _ := models.RequiredRole(request.Status, newStatus)
		role, isParty := request.RoleOf(actingUserID)
		if !isParty {
			return ErrNotRequestParty
		}
		if role != required {
			return ErrWrongRole
		}

		// 条件更新，并发的另一个 Transition 只会看到 0 行受影响
		updated, err := txRequestRepo.UpdateStatusIfPending(ctx, requestID, newStatus)
		if err != nil {
			return storeErr("update request status", err)
		}
		if !updated {
			return ErrRequestResolved
		}
		request.Status = newStatus

		if _, err := txConnRepo.RemoveRequestRefs(ctx, requestID); err != nil {
			return storeErr("remove request refs", err)
		}

		if newStatus == models.RequestStatusAccepted {
			if err := NewGraphMutator(txConnRepo).Connect(ctx, request.SenderID, request.RecipientID); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	log.Printf("Connection request %d moved to %s by user %d", requestID, newStatus, actingUserID)
	s.publish(ctx, request)
	return request, nil
}

// GetRequest returns any request, resolved or not, to one of its parties.
func (s *connectionRequestService) GetRequest(ctx context.Context, requestID, actingUserID uint) (*models.ConnectionRequest, error) {
	request, err := getRequest(ctx, s.requestRepo, requestID)
	if err != nil {
		return nil, err
	}
	if _, ok := request.RoleOf(actingUserID); !ok {
		return nil, ErrNotRequestParty
	}
	return request, nil
}

// ListReceived lists the user's active received requests with the sender attached.
func (s *connectionRequestService) ListReceived(ctx context.Context, userID uint) ([]models.RequestWithUser, error) {
	return s.listActive(ctx, userID, models.RoleReceived)
}

// ListSent lists the user's active sent requests with the recipient attached.
func (s *connectionRequestService) ListSent(ctx context.Context, userID uint) ([]models.RequestWithUser, error) {
	return s.listActive(ctx, userID, models.RoleSent)
}

func (s *connectionRequestService) listActive(ctx context.Context, userID uint, role models.RequestRole) ([]models.RequestWithUser, error) {
	if err := requireUser(ctx, s.userRepo, userID); err != nil {
		return nil, err
	}

	requestIDs, err := s.connRepo.GetRequestRefIDs(ctx, userID, role)
	if err != nil {
		return nil, storeErr("list request refs", err)
	}
	requests, err := s.requestRepo.GetMultipleByIDs(ctx, requestIDs)
	if err != nil {
		return nil, storeErr("load requests", err)
	}

	counterpartIDs := make([]uint, 0, len(requests))
	for i := range requests {
		counterpartIDs = append(counterpartIDs, requests[i].Counterpart(userID))
	}
	users, err := s.userRepo.GetMultipleByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, storeErr("load counterparts", err)
	}
	byID := make(map[uint]models.UserPublic, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Public()
	}

	result := make([]models.RequestWithUser, 0, len(requests))
	for i := range requests {
		// 引用只指向待处理请求；残留引用交给 Reconcile 清理
		if requests[i].Status != models.RequestStatusPending {
			continue
		}
		item := models.RequestWithUser{ConnectionRequest: requests[i]}
		if u, ok := byID[requests[i].Counterpart(userID)]; ok {
			item.User = &u
		}
		result = append(result, item)
	}
	return result, nil
}

// ListAcceptedSenders lists the users whose requests userID has accepted.
func (s *connectionRequestService) ListAcceptedSenders(ctx context.Context, userID uint) ([]models.UserPublic, error) {
	if err := requireUser(ctx, s.userRepo, userID); err != nil {
		return nil, err
	}
	requests, err := s.requestRepo.ListByRecipient(ctx, userID, models.RequestStatusAccepted)
	if err != nil {
		return nil, storeErr("list accepted requests", err)
	}
	senderIDs := make([]uint, 0, len(requests))
	for i := range requests {
		senderIDs = append(senderIDs, requests[i].SenderID)
	}
	users, err := s.userRepo.GetMultipleByIDs(ctx, senderIDs)
	if err != nil {
		return nil, storeErr("load senders", err)
	}
	return models.PublicUsers(users), nil
}

// Reconcile re-drives the side effects implied by a request's terminal status:
// stale refs are dropped and an accepted request's connection is re-applied.
// A pending request is left alone. Safe to call any number of times.
func (s *connectionRequestService) Reconcile(ctx context.Context, requestID uint) (err error) {
	defer func() { s.metrics.ObserveRequestOp("reconcile", outcomeOf(err)) }()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRequestRepo := storage.NewGormConnectionRequestRepository(tx)
		txConnRepo := storage.NewGormConnectionRepository(tx)

		request, err := getRequest(ctx, txRequestRepo, requestID)
		if err != nil {
			return err
		}
		if !request.Status.Terminal() {
			return nil
		}

		removed, err := txConnRepo.RemoveRequestRefs(ctx, requestID)
		if err != nil {
			return storeErr("remove request refs", err)
		}
		if removed > 0 {
			log.Printf("Reconcile: removed %d stale refs of request %d", removed, requestID)
		}

		if request.Status == models.RequestStatusAccepted {
			return NewGraphMutator(txConnRepo).Connect(ctx, request.SenderID, request.RecipientID)
		}
		return nil
	})
}

func (s *connectionRequestService) publish(ctx context.Context, request *models.ConnectionRequest) {
	if s.publisher == nil {
		return
	}
	event := models.NewRequestEvent(request)
	err := s.publisher.PublishRequestEvent(ctx, event)
	s.metrics.ObserveEventPublished(string(event.Type), err)
	if err != nil {
		// 已提交的操作不回滚，Reconcile 可在之后补偿
		log.Printf("Error publishing %s event for request %d: %v", event.Type, request.ID, err)
	}
}

func requireUser(ctx context.Context, repo storage.UserRepository, id uint) error {
	if _, err := repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrUserNotFound, id)
		}
		return storeErr("load user", err)
	}
	return nil
}

func getRequest(ctx context.Context, repo storage.ConnectionRequestRepository, id uint) (*models.ConnectionRequest, error) {
	request, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
		}
		return nil, storeErr("load request", err)
	}
	return request, nil
}
