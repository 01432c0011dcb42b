package session_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/never2/internal/catalog"
	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/property"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
	"github.com/gyaneshwarpardhi/never2/internal/session"
)

func newSession(t *testing.T) (*session.Session, context.CancelFunc) {
	t.Helper()
	return newSessionWith(t, catalog.Default())
}

func newSessionWith(t *testing.T, cat *catalog.Catalog) (*session.Session, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	conf := scene.DefaultConfig()
	conf.InputDim = network.Shape{2}
	s := session.New(ctx, cat, nil, session.Config{
		Scene:          conf,
		CommandTimeout: 2 * time.Second,
	})
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return s, cancel
}

func TestAppendAndRemove(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	snap, err := s.AppendLayer(ctx, "Linear:FullyConnected", map[string]string{"out_features": "3"}, false)
	require.NoError(t, err)
	require.Len(t, snap.Blocks, 3)
	assert.Len(t, snap.Edges, 2)
	id := snap.Blocks[1].ID

	snap, err = s.RemoveLayer(ctx, id, false)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, 2)
	assert.Len(t, snap.Edges, 1)

	_, err = s.AppendLayer(ctx, "Nope:Nope", nil, false)
	var ve *scene.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestConfirmationIsPerCommand(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	_, err := s.AppendLayer(ctx, "Nonlinear:ReLU", nil, false)
	require.NoError(t, err)
	_, err = s.DefineProperty(ctx, session.SidePost, property.Classification{Target: "Y_0"}, false)
	require.NoError(t, err)

	_, err = s.AppendLayer(ctx, "Nonlinear:Tanh", nil, false)
	assert.ErrorIs(t, err, scene.ErrDeclined)

	snap, err := s.AppendLayer(ctx, "Nonlinear:Tanh", nil, true)
	require.NoError(t, err)
	assert.Nil(t, snap.Post)
	assert.Len(t, snap.Blocks, 4)
}

func TestSaveThenOpen(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "net.yaml")

	_, err := s.AppendLayer(ctx, "Linear:FullyConnected", map[string]string{"out_features": "2"}, false)
	require.NoError(t, err)
	_, err = s.DefineProperty(ctx, session.SidePre, property.Box{Lower: []float64{0, 0}, Upper: []float64{1, 1}}, false)
	require.NoError(t, err)
	_, err = s.DefineProperty(ctx, session.SidePost, property.Classification{Target: "Y_1"}, false)
	require.NoError(t, err)
	saved, err := s.Save(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, saved)

	o, _ := newSession(t)
	snap, err := o.Open(ctx, path, false)
	require.NoError(t, err)
	require.Len(t, snap.Blocks, 3)
	require.NotNil(t, snap.Pre)
	require.NotNil(t, snap.Post)
	assert.Equal(t, []string{"X_0", "X_1"}, snap.Pre.Variables)
	assert.Contains(t, snap.Post.SMT, "(<= Y_1 Y_0)")
}

func TestOpen_UndrawableNetworkKeepsCurrentOne(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "net.yaml")
	full, _ := newSession(t)
	_, err := full.AppendLayer(ctx, "Linear:FullyConnected", map[string]string{"out_features": "2"}, false)
	require.NoError(t, err)
	_, err = full.AppendLayer(ctx, "Nonlinear:Sigmoid", nil, false)
	require.NoError(t, err)
	_, err = full.Save(ctx, path)
	require.NoError(t, err)

	linearOnly, err := catalog.Parse([]byte(`
version: v1
blocks:
  - category: Linear
    name: FullyConnected
    layer: FullyConnectedNode
    params:
      - {name: in_features, type: read-only}
      - {name: out_features, type: int, default: "1"}
`))
	require.NoError(t, err)
	s, _ := newSessionWith(t, linearOnly)
	before, err := s.AppendLayer(ctx, "Linear:FullyConnected", map[string]string{"out_features": "3"}, false)
	require.NoError(t, err)

	_, err = s.Open(ctx, path, true)
	var ve *scene.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "SigmoidNode")

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Blocks, snap.Blocks)

	// The network still mirrors the scene.
	snap, err = s.AppendLayer(ctx, "Linear:FullyConnected", nil, false)
	require.NoError(t, err)
	require.Len(t, snap.Blocks, 4)
	other := filepath.Join(t.TempDir(), "kept.yaml")
	_, err = s.Save(ctx, other)
	require.NoError(t, err)

	o, _ := newSession(t)
	reopened, err := o.Open(ctx, other, false)
	require.NoError(t, err)
	require.Len(t, reopened.Blocks, 4)
	assert.Equal(t, snap.Blocks[1].ID, reopened.Blocks[1].ID)
	assert.Equal(t, snap.Blocks[2].ID, reopened.Blocks[2].ID)
}

func TestClearAsksForUnsavedWork(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	_, err := s.AppendLayer(ctx, "Nonlinear:ReLU", nil, false)
	require.NoError(t, err)

	_, err = s.Clear(ctx, false)
	assert.ErrorIs(t, err, scene.ErrDeclined)

	snap, err := s.Clear(ctx, true)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, 2)
}

func TestStartJob(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	s.Runner().RegisterVerifier("fake", jobs.VerifierFunc(func(_ context.Context, req *jobs.Request, _ *slog.Logger) (*jobs.Verdict, error) {
		return &jobs.Verdict{Safe: req.Pre != nil}, nil
	}))
	s.Runner().RegisterTrainer("copy", jobs.TrainerFunc(func(_ context.Context, req *jobs.Request, _ *slog.Logger) (*network.Sequential, error) {
		return req.Network.Clone(), nil
	}))

	_, err := s.StartJob(ctx, jobs.KindVerify, "fake")
	assert.ErrorIs(t, err, scene.ErrNoNetwork)

	_, err = s.AppendLayer(ctx, "Nonlinear:ReLU", nil, false)
	require.NoError(t, err)
	_, err = s.StartJob(ctx, jobs.KindVerify, "fake")
	assert.ErrorIs(t, err, scene.ErrNoProperty)

	_, err = s.DefineProperty(ctx, session.SidePre, property.SMT{Text: "(assert (<= X_0 1))"}, false)
	require.NoError(t, err)
	job, err := s.StartJob(ctx, jobs.KindVerify, "fake")
	require.NoError(t, err)

	finished := func(id string) func() bool {
		return func() bool {
			cur, ok := s.CurrentJob()
			return ok && cur.ID == id && cur.Status != jobs.StatusRunning
		}
	}
	require.Eventually(t, finished(job.ID), 5*time.Second, 10*time.Millisecond)
	cur, _ := s.CurrentJob()
	require.NotNil(t, cur.Verdict)
	assert.True(t, cur.Verdict.Safe)

	job, err = s.StartJob(ctx, jobs.KindTrain, "copy")
	require.NoError(t, err)
	require.Eventually(t, finished(job.ID), 5*time.Second, 10*time.Millisecond)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, 3)
}

func TestStoppedSession(t *testing.T) {
	s, cancel := newSession(t)
	cancel()
	<-s.Done()
	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, session.ErrStopped)
}

func TestSubscribe(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	events, cancel := s.Subscribe(8)

	_, err := s.AppendLayer(ctx, "Nonlinear:ReLU", nil, false)
	require.NoError(t, err)
	_, err = s.AppendLayer(ctx, "Nope:Nope", nil, false)
	require.Error(t, err)
	_, err = s.Snapshot(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "append_layer", ev.Command)
		require.NotNil(t, ev.Scene)
		assert.Len(t, ev.Scene.Blocks, 3)
	case <-time.After(time.Second):
		t.Fatal("no event after append")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q", ev.Command)
	default:
	}

	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok)
}
