package accesssync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/mock/gomock"

	"privylocker/internal/confidential"
	"privylocker/internal/confidential/devengine"
	"privylocker/internal/confidential/mocks"
	"privylocker/internal/locker/models"
	"privylocker/pkg/domain"
)

var (
	owner    = domain.Principal("owner-1")
	verifier = domain.Principal("verifier-1")
	now      = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func TestApplyDispatchesByAction(t *testing.T) {
	ctx := context.Background()

	t.Run("grant", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().GrantAccess(gomock.Any(), confidential.Handle("h1"), verifier, owner).Return(nil)

		err := Apply(ctx, svc, *models.GrantFor("h1", verifier, owner, "share-1", now))
		require.NoError(t, err)
	})

	t.Run("revoke", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().RevokeAccess(gomock.Any(), confidential.Handle("h1"), verifier, owner).Return(nil)

		err := Apply(ctx, svc, *models.RevokeFor("h1", verifier, owner, "share-1", now))
		require.NoError(t, err)
	})

	t.Run("service error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockService(ctrl)
		boom := errors.New("boom")
		svc.EXPECT().GrantAccess(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)

		err := Apply(ctx, svc, *models.GrantFor("h1", verifier, owner, "share-1", now))
		require.ErrorIs(t, err, boom)
	})

	t.Run("unknown action", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockService(ctrl)

		err := Apply(ctx, svc, models.AccessChange{Action: "rotate"})
		require.ErrorIs(t, err, ErrUnknownAction)
	})
}

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryPublisher()

	require.NoError(t, pub.Publish(ctx, *models.GrantFor("h1", owner, owner, "doc-1", now)))
	require.NoError(t, pub.Publish(ctx, *models.RevokeFor("h2", verifier, owner, "share-1", now)))

	changes := pub.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, models.AccessActionGrant, changes[0].Action)
	assert.Equal(t, models.AccessActionRevoke, changes[1].Action)

	boom := errors.New("broker down")
	pub.FailWith(boom)
	require.ErrorIs(t, pub.Publish(ctx, *models.GrantFor("h3", owner, owner, "doc-2", now)), boom)
	assert.Len(t, pub.Changes(), 2)

	pub.FailWith(nil)
	require.NoError(t, pub.Publish(ctx, *models.GrantFor("h3", owner, owner, "doc-2", now)))
	assert.Len(t, pub.Changes(), 3)
}

func TestDirectPublisherDrivesEngineACL(t *testing.T) {
	ctx := context.Background()
	engine, err := devengine.NewRandom()
	require.NoError(t, err)

	ct, err := engine.Encrypt(devengine.ValueOf(42))
	require.NoError(t, err)
	h, err := engine.CreateHandle(ctx, ct, owner)
	require.NoError(t, err)

	pub := NewDirectPublisher(engine)
	assert.False(t, engine.CanDecrypt(h, verifier))

	require.NoError(t, pub.Publish(ctx, *models.GrantFor(h, verifier, owner, "share-1", now)))
	assert.True(t, engine.CanDecrypt(h, verifier))
	v, err := engine.Decrypt(ctx, h, verifier)
	require.NoError(t, err)
	assert.Equal(t, devengine.ValueOf(42), v)

	require.NoError(t, pub.Publish(ctx, *models.RevokeFor(h, verifier, owner, "share-1", now)))
	assert.False(t, engine.CanDecrypt(h, verifier))
}

func testSyncer(svc confidential.Service) *Syncer {
	s := newSyncer(nil, svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.minBackoff = time.Millisecond
	s.maxBackoff = 2 * time.Millisecond
	return s
}

func record(t *testing.T, change *models.AccessChange, offset int64) *kgo.Record {
	t.Helper()
	value, err := json.Marshal(change)
	require.NoError(t, err)
	return &kgo.Record{Key: []byte(change.Subject), Value: value, Offset: offset}
}

func TestSyncerHandleRetriesFailedApply(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	gomock.InOrder(
		svc.EXPECT().RevokeAccess(gomock.Any(), confidential.Handle("h1"), verifier, owner).
			Return(errors.New("cvs unavailable")).Times(1),
		svc.EXPECT().RevokeAccess(gomock.Any(), confidential.Handle("h1"), verifier, owner).
			Return(nil).Times(1),
	)

	err := testSyncer(svc).handle(context.Background(), record(t, models.RevokeFor("h1", verifier, owner, "share-1", now), 5))
	require.NoError(t, err)
}

func TestSyncerHandleStopsWhenContextEnds(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().GrantAccess(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("cvs unavailable")).MinTimes(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := testSyncer(svc).handle(ctx, record(t, models.GrantFor("h1", verifier, owner, "doc-1", now), 6))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSyncerHandleSkipsMalformedRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)

	err := testSyncer(svc).handle(context.Background(), &kgo.Record{Key: []byte("k"), Value: []byte("{not json")})
	assert.NoError(t, err)

	err = testSyncer(svc).handle(context.Background(), record(t, &models.AccessChange{Action: "rotate", Subject: "k"}, 7))
	assert.NoError(t, err, "unknown actions are dropped, not retried")
}
