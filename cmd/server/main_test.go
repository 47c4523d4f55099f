package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	busredis "cedrus/internal/bus/redis"
	"cedrus/internal/bus/noop"
	cacheinproc "cedrus/internal/cache/inproc"
	cacheredis "cedrus/internal/cache/redis"
	"cedrus/internal/cache/tiered"
	"cedrus/internal/bus"
	"cedrus/internal/config"
	"cedrus/internal/engine"
	"cedrus/internal/model"
)

func TestNewCacheSelectsBackendByConfig(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})

	inproc := newCache(config.Config{CacheBackend: "inproc", AuthzCacheTTL: time.Minute}, rdb)
	_, ok := inproc.(*cacheinproc.Cache)
	assert.True(t, ok)

	redisBacked := newCache(config.Config{CacheBackend: "redis", AuthzCacheTTL: time.Minute}, rdb)
	_, ok = redisBacked.(*cacheredis.Cache)
	assert.True(t, ok)

	tieredBacked := newCache(config.Config{CacheBackend: "tiered", AuthzCacheTTL: time.Minute}, rdb)
	_, ok = tieredBacked.(*tiered.Cache)
	assert.True(t, ok)
}

func TestNewBusSelectsBackendByConfig(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})

	noopBus := newBus(config.Config{BusBackend: "noop", NodeID: "node-1"}, rdb)
	_, ok := noopBus.(*noop.Bus)
	assert.True(t, ok)

	redisBus := newBus(config.Config{BusBackend: "redis", NodeID: "node-1"}, rdb)
	_, ok = redisBus.(*busredis.Bus)
	assert.True(t, ok)
}

func TestLoadOperatorIdentitySourceDecodesFile(t *testing.T) {
	src := model.IdentitySource{
		Kind:   model.IdentitySourceOIDC,
		OIDC:   &model.OIDCConfig{Issuer: "https://issuer.example.com", TokenSelection: model.AccessTokenOnly, Audiences: []string{"x"}, PrincipalEntityType: "User"},
	}
	b, err := json.Marshal(src)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity-source.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	got, err := loadOperatorIdentitySource(path)
	require.NoError(t, err)
	assert.Equal(t, model.IdentitySourceOIDC, got.Kind)
	assert.Equal(t, "https://issuer.example.com", got.OIDC.Issuer)
}

func TestLoadOperatorIdentitySourceMissingFileErrors(t *testing.T) {
	_, err := loadOperatorIdentitySource(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// fakePubSub lets consumeEvents be exercised without a real broker: Subscribe
// hands back a channel the test controls directly.
type fakePubSub struct {
	events chan bus.Event
}

func (f *fakePubSub) Publish(context.Context, bus.Event) error { return nil }
func (f *fakePubSub) Subscribe(context.Context) (<-chan bus.Event, error) {
	return f.events, nil
}
func (f *fakePubSub) Close() error { return nil }

func TestConsumeEventsSkipsSelfPublishedEvents(t *testing.T) {
	c := cacheinproc.New(time.Minute)
	eng := engine.New("node-1", c)

	self := model.Project{ID: "proj-self", APIKey: "self-key", Owner: model.EntityUid{Type: "User", ID: "alice"}}
	peer := model.Project{ID: "proj-peer", APIKey: "peer-key", Owner: model.EntityUid{Type: "User", ID: "bob"}}

	events := make(chan bus.Event, 2)
	events <- bus.Event{Type: bus.EventProjectCreate, ProjectID: self.ID, Project: &self, SenderID: "node-1"}
	events <- bus.Event{Type: bus.EventProjectCreate, ProjectID: peer.ID, Project: &peer, SenderID: "node-2"}
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	consumeEvents(ctx, &fakePubSub{events: events}, eng, "node-1")

	_, ok := eng.ResolveAPIKey("self-key")
	assert.False(t, ok, "self-published event must be skipped")
	_, ok = eng.ResolveAPIKey("peer-key")
	assert.True(t, ok, "peer-published event must be applied")
}
