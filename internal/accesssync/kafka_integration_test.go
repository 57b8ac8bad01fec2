//go:build integration

package accesssync_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"privylocker/internal/accesssync"
	"privylocker/internal/confidential/devengine"
	"privylocker/internal/locker/models"
	"privylocker/internal/platform/config"
	"privylocker/pkg/domain"
	"privylocker/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	broker string
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
}

func (s *KafkaSuite) kafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:       []string{s.broker},
		Topic:         "access-" + uuid.NewString(),
		ClientID:      "privylocker-test",
		ConsumerGroup: "syncer-" + uuid.NewString(),
	}
}

func (s *KafkaSuite) TestPublishedGrantsReachEngine() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	cfg := s.kafkaConfig()
	owner := domain.Principal("owner-1")
	verifier := domain.Principal("verifier-1")

	engine, err := devengine.NewRandom()
	s.Require().NoError(err)
	ct, err := engine.Encrypt(devengine.ValueOf(7))
	s.Require().NoError(err)
	h, err := engine.CreateHandle(ctx, ct, owner)
	s.Require().NoError(err)

	pub, err := accesssync.NewKafkaPublisher(cfg)
	s.Require().NoError(err)
	defer pub.Close()
	s.Require().NoError(pub.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(pub.EnsureTopic(ctx, 1, 1), "second create is a no-op")

	s.Require().NoError(pub.Publish(ctx, *models.GrantFor(h, verifier, owner, "share-1", time.Now())))

	syncer, err := accesssync.NewSyncer(cfg, engine, nil)
	s.Require().NoError(err)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- syncer.Run(runCtx) }()

	s.Eventually(func() bool { return engine.CanDecrypt(h, verifier) }, 30*time.Second, 100*time.Millisecond)

	s.Require().NoError(pub.Publish(ctx, *models.RevokeFor(h, verifier, owner, "share-1", time.Now())))
	s.Eventually(func() bool { return !engine.CanDecrypt(h, verifier) }, 30*time.Second, 100*time.Millisecond)

	stop()
	s.NoError(<-done)
}
