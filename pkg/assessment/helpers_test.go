package assessment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/geririsk/platform/pkg/pipeline"
	"github.com/geririsk/platform/pkg/risk"
	"github.com/geririsk/platform/pkg/uploads"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const scenarioCSV = "heart_rate,spo2,steps\n72,98,1000\n110,90,2000\n"

type publishedEvent struct {
	Type string
	Data map[string]interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, eventType string, _ string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Type: eventType, Data: data})
	return nil
}

func (p *fakePublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type testEnv struct {
	service  *Service
	store    *uploads.Store
	cache    *Cache
	redis    *miniredis.Miniredis
	uploaded *fakePublisher
	assessed *fakePublisher
}

func newTestEnv(t *testing.T, scorer risk.Scorer) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	repo := uploads.NewRepository(db)
	require.NoError(t, repo.AutoMigrate())

	blobs, err := uploads.NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)
	store := uploads.NewStore(blobs, repo)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	env := &testEnv{
		store:    store,
		cache:    cache,
		redis:    mr,
		uploaded: &fakePublisher{},
		assessed: &fakePublisher{},
	}
	env.service = NewService(store, pipeline.New(scorer), cache, env.uploaded, env.assessed)
	return env
}
