package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/monitor"
	"github.com/petrijr/stepflow/pkg/monitor/monitortest"
)

type RedisStoreTestSuite struct {
	suite.Suite

	mr     *miniredis.Miniredis
	client *redis.Client
}

func TestRedisStoreTestSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreTestSuite))
}

func (s *RedisStoreTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
}

func (s *RedisStoreTestSuite) TearDownTest() {
	s.Require().NoError(s.client.Close())
}

func (s *RedisStoreTestSuite) TestContract() {
	monitortest.RunStoreTests(s.T(), func(t *testing.T) monitor.Store {
		s.mr.FlushAll()
		return monitor.NewRedisStore(s.client, "", 0)
	})
}

func (s *RedisStoreTestSuite) TestKeyLayout() {
	ctx := context.Background()
	store := monitor.NewRedisStore(s.client, "test:", 0)

	s.Require().NoError(store.StartRun(ctx, api.RunInfo{ID: "r1", Workflow: "wf"}, monitortest.BaseTime))
	s.Require().NoError(store.PutValue(ctx, "r1", "k", "v"))

	s.True(s.mr.Exists("test:run:r1"))
	s.True(s.mr.Exists("test:run:r1:values"))
	s.Equal("wf", s.mr.HGet("test:run:r1", "workflow"))

	members, err := s.mr.ZMembers("test:runs")
	s.Require().NoError(err)
	s.Equal([]string{"r1"}, members)
}

func (s *RedisStoreTestSuite) TestTTLExpiresRuns() {
	ctx := context.Background()
	store := monitor.NewRedisStore(s.client, "", time.Minute)

	s.Require().NoError(store.StartRun(ctx, api.RunInfo{ID: "old", Workflow: "wf"}, monitortest.BaseTime))
	s.Require().NoError(store.PutValue(ctx, "old", "k", 1))

	s.mr.FastForward(2 * time.Minute)

	s.Require().NoError(store.StartRun(ctx, api.RunInfo{ID: "new", Workflow: "wf"}, monitortest.BaseTime.Add(time.Hour)))

	_, err := store.GetRun(ctx, "old")
	s.ErrorIs(err, monitor.ErrRunNotFound)

	runs, err := store.ListRuns(ctx, 0)
	s.Require().NoError(err)
	s.Equal([]string{"new"}, monitortest.RunIDs(runs))

	// The expired ID is pruned from the index while listing.
	members, err := s.mr.ZMembers("stepflow:runs")
	s.Require().NoError(err)
	s.Equal([]string{"new"}, members)
}
