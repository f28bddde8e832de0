// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bootstrap

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/config"
	"github.com/ManuGH/fem/internal/daemon"
	"github.com/ManuGH/fem/internal/feature/model"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Tenant = "TENANT"
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = "memory"
	cfg.Ops.ListenAddr = ""
	cfg.Scheduler.Interval = 10 * time.Millisecond
	return cfg
}

func creation(id, providerID string) model.CreationEvent {
	return model.CreationEvent{
		EventHeader: model.EventHeader{RequestID: id, RequestOwner: "owner", RequestDate: time.Now().UTC()},
		Feature: model.Feature{
			ID:         providerID,
			Geometry:   model.Geometry{Type: "Point", Coordinates: []byte(`[1.5,43.6]`)},
			Properties: model.Properties{"a": 1},
		},
		Metadata: model.Metadata{Session: "S1", SessionOwner: "SO"},
	}
}

func TestBuild_CreationFlowsThroughTheBus(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.Bus.Subscribe(ctx, bus.TopicRequestEvents)
	require.NoError(t, err)

	app := daemon.NewApp(daemon.Deps{Logger: zerolog.Nop(), Recover: c.Processor.Recover, Services: c.Services()})
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	seen := make(chan model.RequestEvent, 256)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.C():
				var ev model.RequestEvent
				if json.Unmarshal(msg.Payload, &ev) == nil {
					seen <- ev
				}
			}
		}
	}()

	env, err := model.EncodeEvent(creation("r1", "P1"))
	require.NoError(t, err)

	// the admission listener subscribes asynchronously
	require.Eventually(t, func() bool {
		pubCtx, pubCancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer pubCancel()
		_ = bus.PublishJSON(pubCtx, c.Bus, bus.TopicRequests, env)
		select {
		case <-seen:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, time.Millisecond)

	var success model.RequestEvent
	timeout := time.After(3 * time.Second)
	for success.State != model.StateSuccess {
		select {
		case ev := <-seen:
			if ev.RequestID == "r1" {
				success = ev
			}
		case <-timeout:
			t.Fatal("creation did not complete")
		}
	}
	urn := model.NewURN("", "TENANT", "P1", 1).String()
	assert.Equal(t, urn, success.URN)

	ents, err := c.Store.GetEntities(ctx, []string{urn})
	require.NoError(t, err)
	require.Contains(t, ents, urn)
	assert.Equal(t, "S1", ents[urn].Session)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, c.Close())
}

func TestBuild_DurableStack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(cfg.DataDir, "fem.sqlite")
	cfg.Outbox.Enabled = true
	cfg.Outbox.Path = filepath.Join(cfg.DataDir, "outbox")
	cfg.Plugins = []config.PluginConfig{{ID: "local", Type: "file", Root: cfg.DataDir}}

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Outbox)
	_, ok := c.Plugins.Resolve("local")
	assert.True(t, ok)

	ready := c.Health.Ready(context.Background())
	assert.True(t, ready.Ready)
	assert.Contains(t, ready.Checks, "store")
	assert.Contains(t, ready.Checks, "outbox")

	names := make([]string, 0)
	for _, s := range c.Services() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"worker", "scheduler", "sweeper", "admission", "storage_responses", "disseminations", "outbox"}, names)
}

func TestBuild_FailsOnMissingModels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models.File = filepath.Join(cfg.DataDir, "missing.yaml")
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "read models file")
}

func TestContainer_ApplyReloadsModels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models.File = filepath.Join(cfg.DataDir, "models.yaml")
	require.NoError(t, os.WriteFile(cfg.Models.File, []byte("models:\n  - name: A\n    attributes: []\n"), 0o600))

	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Equal(t, []string{"A"}, c.Models.Models())

	require.NoError(t, os.WriteFile(cfg.Models.File, []byte("models:\n  - name: A\n    attributes: []\n  - name: B\n    attributes: []\n"), 0o600))
	c.Apply(cfg)
	assert.Equal(t, []string{"A", "B"}, c.Models.Models())

	require.NoError(t, os.WriteFile(cfg.Models.File, []byte("models: [oops"), 0o600))
	c.Apply(cfg)
	assert.Equal(t, []string{"A", "B"}, c.Models.Models(), "a broken file keeps the previous models")
}

func TestWireServices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dir+"\nstore:\n  backend: memory\nops:\n  listenAddr: \"\"\n"), 0o600))

	c, err := WireServices(context.Background(), "v-test", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.NotNil(t, c.App)
	assert.NotNil(t, c.Holder)
	assert.Equal(t, "v-test", c.Holder.Get().Version)
}
