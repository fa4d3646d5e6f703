package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"connect-go/internal/models"
)

func TestCreateRequest_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, a, req.SenderID)
	assert.Equal(t, b, req.RecipientID)

	assert.Equal(t, []uint{req.ID}, f.refs(t, a, models.RoleSent))
	assert.Equal(t, []uint{req.ID}, f.refs(t, b, models.RoleReceived))
	assert.Empty(t, f.refs(t, a, models.RoleReceived))
	assert.Equal(t, []models.RequestEventType{models.EventRequestCreated}, f.publisher.types())
}

func TestCreateRequest_PreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	t.Run("missing user wins over self-request", func(t *testing.T) {
		_, err := f.ledger.CreateRequest(ctx, 999, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing recipient", func(t *testing.T) {
		_, err := f.ledger.CreateRequest(ctx, a, 999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("self-request", func(t *testing.T) {
		_, err := f.ledger.CreateRequest(ctx, a, a)
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.ErrorIs(t, err, ErrSelfRequest)
		assert.Zero(t, f.countRequests(t, models.RequestStatusPending))
	})

	t.Run("pending in either direction", func(t *testing.T) {
		_, err := f.ledger.CreateRequest(ctx, a, b)
		require.NoError(t, err)

		_, err = f.ledger.CreateRequest(ctx, a, b)
		assert.ErrorIs(t, err, ErrAlreadyPending)
		_, err = f.ledger.CreateRequest(ctx, b, a)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, int64(1), f.countRequests(t, models.RequestStatusPending))
	})
}

func TestCreateRequest_AlreadyConnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	_, err = f.ledger.Transition(ctx, req.ID, b, models.RequestStatusAccepted)
	require.NoError(t, err)

	_, err = f.ledger.CreateRequest(ctx, a, b)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	_, err = f.ledger.CreateRequest(ctx, b, a)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestCreateRequest_AfterRejectionCanRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	_, err = f.ledger.Transition(ctx, req.ID, b, models.RequestStatusRejected)
	require.NoError(t, err)

	again, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestCreateRequest_ConcurrentSamePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, recipient := a, b
			if i%2 == 1 {
				sender, recipient = b, a
			}
			_, err := f.ledger.CreateRequest(ctx, sender, recipient)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyPending)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), f.countRequests(t, models.RequestStatusPending))
}

// Without a shared lock the pending-pair unique index is the last guard: a
// competing pending row inserted after the pre-checks turns the insert into
// ErrAlreadyPending, and the transaction leaves nothing behind.
func TestCreateRequest_UniqueIndexCatchesRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ledger := NewConnectionRequestService(f.db, noopLocker{}, f.publisher, nil)

	var fired bool
	err := f.db.Callback().Create().Before("gorm:create").Register("test:competing_pending", func(tx *gorm.DB) {
		if fired || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "connection_requests" {
			return
		}
		fired = true
		low, high := models.CanonicalPair(a, b)
		now := time.Now()
		// 同一事务连接上写入反方向的待处理请求
		res := tx.Session(&gorm.Session{NewDB: true}).Exec(
			`INSERT INTO connection_requests (sender_id, recipient_id, status, pair_low, pair_high, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b, a, models.RequestStatusPending, low, high, now, now)
		assert.NoError(t, res.Error)
	})
	require.NoError(t, err)

	_, err = ledger.CreateRequest(ctx, a, b)
	require.True(t, fired)
	assert.ErrorIs(t, err, ErrAlreadyPending)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, int64(0), f.countRequests(t, models.RequestStatusPending))
	assert.Empty(t, f.refs(t, a, models.RoleSent))
	assert.Empty(t, f.refs(t, b, models.RoleReceived))
	assert.Empty(t, f.publisher.types())

	// 回调只触发一次，之后正常创建
	req, err := ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.countRequests(t, models.RequestStatusPending))
	assert.Equal(t, []uint{req.ID}, f.refs(t, a, models.RoleSent))
}

func TestCreateRequest_LockFailureIsStoreFailure(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	ledger := NewConnectionRequestService(f.db, failingLocker{}, nil, nil)

	_, err := ledger.CreateRequest(context.Background(), a, b)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.Zero(t, f.countRequests(t, models.RequestStatusPending))
}

func TestCreateRequest_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")
	f.publisher.err = errBroker

	req, err := f.ledger.CreateRequest(context.Background(), a, b)
	require.NoError(t, err)
	assert.NotZero(t, req.ID)
}

func TestTransition_Accept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	got, err := f.ledger.Transition(ctx, req.ID, b, models.RequestStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAccepted, got.Status)

	assert.Empty(t, f.refs(t, a, models.RoleSent))
	assert.Empty(t, f.refs(t, b, models.RoleReceived))
	assert.Equal(t, []uint{b}, f.connections(t, a))
	assert.Equal(t, []uint{a}, f.connections(t, b))
	assert.Equal(t,
		[]models.RequestEventType{models.EventRequestCreated, models.EventRequestAccepted},
		f.publisher.types())
}

func TestTransition_RoleRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	cases := []struct {
		name   string
		actor  uint
		status models.RequestStatus
	}{
		{"sender cannot accept", a, models.RequestStatusAccepted},
		{"sender cannot reject", a, models.RequestStatusRejected},
		{"recipient cannot ignore", b, models.RequestStatusIgnored},
		{"outsider cannot accept", c, models.RequestStatusAccepted},
		{"outsider cannot ignore", c, models.RequestStatusIgnored},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.Transition(ctx, req.ID, tc.actor, tc.status)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}

	// Nothing above changed the request.
	stored, err := f.ledger.GetRequest(ctx, req.ID, a)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, stored.Status)
	assert.Empty(t, f.connections(t, a))
}

func TestTransition_InvalidTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	for _, s := range []models.RequestStatus{models.RequestStatusPending, "cancelled", ""} {
		_, err := f.ledger.Transition(ctx, req.ID, b, s)
		assert.ErrorIs(t, err, ErrInvalidOperation, "status %q", s)
	}
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture(t)
	a := f.user(t, "alice")

	_, err := f.ledger.Transition(context.Background(), 12345, a, models.RequestStatusAccepted)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestTransition_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	_, err = f.ledger.Transition(ctx, req.ID, b, models.RequestStatusRejected)
	require.NoError(t, err)

	_, err = f.ledger.Transition(ctx, req.ID, b, models.RequestStatusAccepted)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.ledger.Transition(ctx, req.ID, a, models.RequestStatusIgnored)
	assert.ErrorIs(t, err, ErrRequestResolved)

	stored, err := f.ledger.GetRequest(ctx, req.ID, b)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, stored.Status)
	assert.Empty(t, f.connections(t, a))
}

func TestTransition_ConcurrentAcceptAndIgnore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = f.ledger.Transition(ctx, req.ID, b, models.RequestStatusAccepted)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = f.ledger.Transition(ctx, req.ID, a, models.RequestStatusIgnored)
	}()
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, ok)

	stored, err := f.ledger.GetRequest(ctx, req.ID, a)
	require.NoError(t, err)
	if stored.Status == models.RequestStatusAccepted {
		assert.Equal(t, []uint{a}, f.connections(t, b))
	} else {
		assert.Equal(t, models.RequestStatusIgnored, stored.Status)
		assert.Empty(t, f.connections(t, b))
	}
}

func TestGetRequest_PartiesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	_, err = f.ledger.GetRequest(ctx, req.ID, c)
	assert.ErrorIs(t, err, ErrNotRequestParty)

	_, err = f.ledger.GetRequest(ctx, 999, a)
	assert.ErrorIs(t, err, ErrNotFound)

	// Resolved requests remain visible as history.
	_, err = f.ledger.Transition(ctx, req.ID, a, models.RequestStatusIgnored)
	require.NoError(t, err)
	got, err := f.ledger.GetRequest(ctx, req.ID, b)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusIgnored, got.Status)
}

func TestListReceivedAndSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	ab, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	cb, err := f.ledger.CreateRequest(ctx, c, b)
	require.NoError(t, err)

	received, err := f.ledger.ListReceived(ctx, b)
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, ab.ID, received[0].ID)
	require.NotNil(t, received[0].User)
	assert.Equal(t, a, received[0].User.ID)
	assert.Equal(t, cb.ID, received[1].ID)
	assert.Equal(t, c, received[1].User.ID)

	sent, err := f.ledger.ListSent(ctx, a)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, b, sent[0].User.ID)

	_, err = f.ledger.Transition(ctx, ab.ID, b, models.RequestStatusAccepted)
	require.NoError(t, err)

	received, err = f.ledger.ListReceived(ctx, b)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, cb.ID, received[0].ID)

	sent, err = f.ledger.ListSent(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, sent)

	_, err = f.ledger.ListReceived(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAcceptedSenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	ab, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)
	cb, err := f.ledger.CreateRequest(ctx, c, b)
	require.NoError(t, err)
	_, err = f.ledger.Transition(ctx, ab.ID, b, models.RequestStatusAccepted)
	require.NoError(t, err)
	_, err = f.ledger.Transition(ctx, cb.ID, b, models.RequestStatusRejected)
	require.NoError(t, err)

	senders, err := f.ledger.ListAcceptedSenders(ctx, b)
	require.NoError(t, err)
	require.Len(t, senders, 1)
	assert.Equal(t, a, senders[0].ID)
}

func TestReconcile_RepairsAcceptedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")

	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	// Simulate a status write that landed without its side effects.
	require.NoError(t, f.db.Model(&models.ConnectionRequest{}).
		Where("id = ?", req.ID).Update("status", models.RequestStatusAccepted).Error)
	require.NoError(t, f.conns.AddConnection(ctx, a, b))

	require.NoError(t, f.ledger.Reconcile(ctx, req.ID))
	assert.Equal(t, []uint{b}, f.connections(t, a))
	assert.Equal(t, []uint{a}, f.connections(t, b))
	assert.Empty(t, f.refs(t, a, models.RoleSent))
	assert.Empty(t, f.refs(t, b, models.RoleReceived))

	// Idempotent.
	require.NoError(t, f.ledger.Reconcile(ctx, req.ID))
	assert.Equal(t, []uint{a}, f.connections(t, b))
}

func TestReconcile_PendingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "alice"), f.user(t, "bob")
	req, err := f.ledger.CreateRequest(ctx, a, b)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Reconcile(ctx, req.ID))
	assert.Equal(t, []uint{req.ID}, f.refs(t, a, models.RoleSent))
	assert.Empty(t, f.connections(t, a))

	assert.ErrorIs(t, f.ledger.Reconcile(ctx, 999), ErrNotFound)
}
