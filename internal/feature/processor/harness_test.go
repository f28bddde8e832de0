// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fem/internal/feature/admission"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/feature/validation"
	"github.com/ManuGH/fem/internal/testutil"
)

const tenant = "TENANT"

type harness struct {
	clock   *testutil.Clock
	st      *store.MemoryStore
	pub     *testutil.Publisher
	gw      *testutil.Gateway
	plugins testutil.Plugins
	adm     *admission.Pipeline
	svc     *Service
}

func newHarness(t *testing.T, notify bool) *harness {
	t.Helper()
	clock := testutil.NewClock()
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	pub := &testutil.Publisher{}
	h := &harness{
		clock:   clock,
		st:      st,
		pub:     pub,
		gw:      &testutil.Gateway{},
		plugins: testutil.Plugins{},
		adm:     admission.New(st, validation.New(nil), pub, admission.WithClock(clock.Now)),
	}
	h.svc = New(Deps{
		Store:     st,
		Gateway:   h.gw,
		Publisher: pub,
		Plugins:   h.plugins,
		Admitter:  h.adm,
		Now:       clock.Now,
	}, Config{Tenant: tenant, NotificationsActive: notify})
	return h
}

func header(id string) model.EventHeader {
	return model.EventHeader{RequestID: id, RequestOwner: "owner", RequestDate: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func creationEvent(id, providerID string) model.CreationEvent {
	return model.CreationEvent{
		EventHeader: header(id),
		Feature: model.Feature{
			ID:         providerID,
			Geometry:   model.Geometry{Type: "Point", Coordinates: []byte(`[1.5,43.6]`)},
			Properties: model.Properties{"a": 1, "b": "x"},
		},
		Metadata: model.Metadata{Session: "S1", SessionOwner: "SO"},
	}
}

func withFile(ev model.CreationEvent, checksum string, loc model.Location) model.CreationEvent {
	ev.Feature.Files = append(ev.Feature.Files, model.File{
		Attributes: model.FileAttributes{
			DataType:  "RAWDATA",
			Filename:  checksum + ".dat",
			Checksum:  checksum,
			Algorithm: "MD5",
			MimeType:  "application/octet-stream",
		},
		Locations: []model.Location{loc},
	})
	if len(ev.Metadata.Storages) == 0 {
		ev.Metadata.Storages = []model.StorageMetadata{
			{PluginBusinessID: "disk", TargetTypes: []string{"RAWDATA"}},
			{PluginBusinessID: "tape", TargetTypes: []string{"QUICKLOOK"}},
		}
	}
	return ev
}

func urnOf(providerID string, v int) string {
	return model.NewURN("", tenant, providerID, v).String()
}

func (h *harness) admit(t *testing.T, events ...model.Event) []*model.Request {
	t.Helper()
	res, err := h.adm.Admit(context.Background(), events)
	require.NoError(t, err)
	require.Empty(t, res.Denied)
	return res.Granted
}

// run schedules every delayed request of kind into one job and executes it.
func (h *harness) run(t *testing.T, kind model.Kind) {
	t.Helper()
	h.runStage(t, kind, model.StageProcess, model.StepLocalDelayed, model.StepLocalScheduled)
}

// flush sends the deferred notifications.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	h.runStage(t, "", model.StageNotify, model.StepLocalToBeNotified, model.StepRemoteNotifyReq)
}

func (h *harness) runStage(t *testing.T, kind model.Kind, stage model.Stage, from, to model.Step) {
	t.Helper()
	ctx := context.Background()
	reqs, err := h.st.FindRequests(ctx, store.RequestQuery{Kind: kind, Steps: []model.Step{from}, States: []model.State{model.StateGranted}})
	require.NoError(t, err)
	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	claimed, err := h.st.ClaimRequests(ctx, ids, from, to)
	require.NoError(t, err)
	require.NoError(t, h.svc.Handle(ctx, model.Job{ID: "job-" + string(stage), Kind: kind, Stage: stage, RequestIDs: claimed}))
}

func (h *harness) request(t *testing.T, id int64) *model.Request {
	t.Helper()
	reqs, err := h.st.GetRequests(context.Background(), []int64{id})
	require.NoError(t, err)
	if len(reqs) == 0 {
		return nil
	}
	return reqs[0]
}

func (h *harness) entity(t *testing.T, urn string) *model.Entity {
	t.Helper()
	ents, err := h.st.GetEntities(context.Background(), []string{urn})
	require.NoError(t, err)
	return ents[urn]
}

// create runs a file-less creation of providerID to completion.
func (h *harness) create(t *testing.T, requestID, providerID string) *model.Entity {
	t.Helper()
	h.admit(t, creationEvent(requestID, providerID))
	h.run(t, model.KindCreation)
	maxV, err := h.st.MaxVersion(context.Background(), providerID)
	require.NoError(t, err)
	e := h.entity(t, urnOf(providerID, maxV))
	require.NotNil(t, e)
	return e
}

func (h *harness) respond(t *testing.T, resps ...model.StorageResponse) {
	t.Helper()
	require.NoError(t, h.svc.HandleStorageResponses(context.Background(), resps))
}
