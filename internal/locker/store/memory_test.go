package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"privylocker/internal/confidential"
	"privylocker/internal/locker/models"
	"privylocker/internal/locker/ports"
	"privylocker/internal/locker/store"
	"privylocker/pkg/domain"
	dErrors "privylocker/pkg/domain-errors"
	"privylocker/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *store.InMemory
	tx    *store.ShardedTx
	now   time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.tx = store.NewShardedTx(s.store)
	s.now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) profile(owner domain.Principal) *models.UserProfile {
	p, err := models.NewUserProfile(owner, s.now)
	s.Require().NoError(err)
	return p
}

func (s *InMemorySuite) document(p *models.UserProfile, h confidential.Handle) *models.Document {
	d, err := models.NewDocument(p, "fp", "s3://bucket/key", h, s.now)
	s.Require().NoError(err)
	return d
}

func (s *InMemorySuite) TestProfileAutocommit() {
	ctx := context.Background()
	p := s.profile("alice")

	s.Require().NoError(s.store.Profiles().Create(ctx, p))
	s.Require().ErrorIs(s.store.Profiles().Create(ctx, p), sentinel.ErrAlreadyExists)

	got, err := s.store.Profiles().FindByKey(ctx, p.Key)
	s.Require().NoError(err)
	s.Equal(p.Owner, got.Owner)

	got.DocumentCount = 4
	s.Require().NoError(s.store.Profiles().Update(ctx, got))
	again, err := s.store.Profiles().FindByKey(ctx, p.Key)
	s.Require().NoError(err)
	s.Equal(uint64(4), again.DocumentCount)

	_, err = s.store.Profiles().FindByKey(ctx, domain.DeriveProfileKey("nobody"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Profiles().Update(ctx, s.profile("nobody")), sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestRunInTx() {
	ctx := ports.WithTxScope(context.Background(), "alice")

	s.Run("commits every write together", func() {
		p := s.profile("alice")
		err := s.tx.RunInTx(ctx, func(stores ports.Stores) error {
			if err := stores.Profiles().Create(ctx, p); err != nil {
				return err
			}
			// read-your-writes inside the transaction
			got, err := stores.Profiles().FindByKey(ctx, p.Key)
			if err != nil {
				return err
			}
			d := s.document(got, "h0")
			if err := stores.Documents().Create(ctx, d); err != nil {
				return err
			}
			got.ApplyUpload(s.now)
			return stores.Profiles().Update(ctx, got)
		})
		s.Require().NoError(err)

		got, err := s.store.Profiles().FindByKey(ctx, p.Key)
		s.Require().NoError(err)
		s.Equal(uint64(1), got.DocumentCount)
		_, err = s.store.Documents().FindByKey(ctx, domain.DeriveDocumentKey(p.Key, 0))
		s.NoError(err)
	})

	s.Run("error discards every write", func() {
		p := s.profile("bob")
		boom := errors.New("boom")
		err := s.tx.RunInTx(ctx, func(stores ports.Stores) error {
			if err := stores.Profiles().Create(ctx, p); err != nil {
				return err
			}
			return boom
		})
		s.Require().ErrorIs(err, boom)
		_, err = s.store.Profiles().FindByKey(ctx, p.Key)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("cancelled context aborts before running", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		ran := false
		err := s.tx.RunInTx(cancelled, func(ports.Stores) error {
			ran = true
			return nil
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		s.False(ran)
	})

	s.Run("deadline passing during fn aborts the commit", func() {
		p := s.profile("carol")
		err := store.NewShardedTx(s.store).WithTimeout(10*time.Millisecond).RunInTx(ctx, func(stores ports.Stores) error {
			if err := stores.Profiles().Create(ctx, p); err != nil {
				return err
			}
			time.Sleep(30 * time.Millisecond)
			return nil
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		_, err = s.store.Profiles().FindByKey(ctx, p.Key)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemorySuite) TestFindByKeysOrdersByIndex() {
	ctx := context.Background()
	p := s.profile("alice")
	var keys []domain.DocumentKey
	for i := 0; i < 3; i++ {
		d := s.document(p, confidential.Handle("h"))
		s.Require().NoError(s.store.Documents().Create(ctx, d))
		keys = append(keys, d.Key)
		p.ApplyUpload(s.now)
	}

	missing := domain.DeriveDocumentKey(p.Key, 10)
	docs, err := s.store.Documents().FindByKeys(ctx, []domain.DocumentKey{keys[2], missing, keys[0], keys[1]})
	s.Require().NoError(err)
	s.Require().Len(docs, 3)
	for i, d := range docs {
		s.Equal(uint64(i), d.Index)
	}
}

func (s *InMemorySuite) TestSessions() {
	ctx := context.Background()
	p := s.profile("alice")
	doc := s.document(p, "h0")
	s.Require().NoError(s.store.Documents().Create(ctx, doc))

	short, err := models.NewShareSession(doc, "bob", "d1", time.Minute, s.now)
	s.Require().NoError(err)
	long, err := models.NewShareSession(doc, "carol", "d2", time.Hour, s.now.Add(time.Second))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Sessions().Create(ctx, short))
	s.Require().NoError(s.store.Sessions().Create(ctx, long))
	s.Require().ErrorIs(s.store.Sessions().Create(ctx, short), sentinel.ErrAlreadyExists)

	s.Run("lists by creation time", func() {
		list, err := s.store.Sessions().ListByDocument(ctx, doc.Key)
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal(short.Key, list[0].Key)
		s.Equal(long.Key, list[1].Key)
	})

	s.Run("lists expired unrevoked sessions", func() {
		list, err := s.store.Sessions().ListExpiredUnrevoked(ctx, doc.Key, s.now.Add(2*time.Minute))
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(short.Key, list[0].Key)

		got, err := s.store.Sessions().FindByKey(ctx, short.Key)
		s.Require().NoError(err)
		s.True(got.ApplyRevocation(s.now.Add(2 * time.Minute)))
		s.Require().NoError(s.store.Sessions().Update(ctx, got))

		list, err = s.store.Sessions().ListExpiredUnrevoked(ctx, doc.Key, s.now.Add(2*time.Minute))
		s.Require().NoError(err)
		s.Empty(list)
	})

	s.Run("returned sessions are copies", func() {
		got, err := s.store.Sessions().FindByKey(ctx, short.Key)
		s.Require().NoError(err)
		s.Require().NotNil(got.RevokedAt)
		*got.RevokedAt = time.Time{}
		got.Revoked = false

		again, err := s.store.Sessions().FindByKey(ctx, short.Key)
		s.Require().NoError(err)
		s.True(again.Revoked)
		s.False(again.RevokedAt.IsZero())
	})
}
