package jobs_test

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/property"
)

func testNetwork(t *testing.T) *network.Sequential {
	t.Helper()
	nn := network.NewSequential("net", "X")
	n, err := network.NewLayerNode(network.LayerFullyConnected, "fc", map[string]any{"out_features": 2}, network.Shape{2})
	require.NoError(t, err)
	require.NoError(t, nn.AppendNode(n))
	return nn
}

func newRunner(t *testing.T, timeout time.Duration) (*jobs.Runner, chan jobs.Job) {
	t.Helper()
	done := make(chan jobs.Job, 4)
	r := jobs.NewRunner(context.Background(), jobs.Config{
		Timeout: timeout,
		OnDone:  func(j jobs.Job) { done <- j },
	})
	t.Cleanup(r.Close)
	return r, done
}

func wait(t *testing.T, done <-chan jobs.Job) jobs.Job {
	t.Helper()
	select {
	case j := <-done:
		return j
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
		return jobs.Job{}
	}
}

func TestRunner_Verify(t *testing.T) {
	r, done := newRunner(t, 0)
	r.RegisterVerifier("fake", jobs.VerifierFunc(func(_ context.Context, req *jobs.Request, _ *slog.Logger) (*jobs.Verdict, error) {
		return &jobs.Verdict{Safe: req.Network.Len() == 1}, nil
	}))

	job, err := r.Submit(jobs.KindVerify, &jobs.Request{Strategy: "fake", Network: testNetwork(t)})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, job.Status)
	assert.NotEmpty(t, job.ID)

	got := wait(t, done)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, jobs.StatusSucceeded, got.Status)
	require.NotNil(t, got.Verdict)
	assert.True(t, got.Verdict.Safe)

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, jobs.StatusSucceeded, cur.Status)
	assert.False(t, r.Busy())
}

func TestRunner_Busy(t *testing.T) {
	r, done := newRunner(t, 0)
	release := make(chan struct{})
	r.RegisterTrainer("slow", jobs.TrainerFunc(func(_ context.Context, req *jobs.Request, _ *slog.Logger) (*network.Sequential, error) {
		<-release
		return req.Network.Clone(), nil
	}))

	req := &jobs.Request{Strategy: "slow", Network: testNetwork(t)}
	_, err := r.Submit(jobs.KindTrain, req)
	require.NoError(t, err)
	assert.True(t, r.Busy())

	_, err = r.Submit(jobs.KindTrain, req)
	assert.ErrorIs(t, err, jobs.ErrBusy)

	close(release)
	got := wait(t, done)
	assert.Equal(t, jobs.StatusSucceeded, got.Status)
	require.NotNil(t, got.Trained)
	assert.Equal(t, []string{"fc"}, got.Trained.IDs())

	_, err = r.Submit(jobs.KindTrain, req)
	require.NoError(t, err)
	wait(t, done)
}

func TestRunner_FailureAndTimeout(t *testing.T) {
	r, done := newRunner(t, 50*time.Millisecond)
	r.RegisterVerifier("broken", jobs.VerifierFunc(func(context.Context, *jobs.Request, *slog.Logger) (*jobs.Verdict, error) {
		return nil, errors.New("solver crashed")
	}))
	r.RegisterVerifier("hang", jobs.VerifierFunc(func(ctx context.Context, _ *jobs.Request, _ *slog.Logger) (*jobs.Verdict, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	_, err := r.Submit(jobs.KindVerify, &jobs.Request{Strategy: "broken", Network: testNetwork(t)})
	require.NoError(t, err)
	got := wait(t, done)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, "solver crashed", got.Error)

	_, err = r.Submit(jobs.KindVerify, &jobs.Request{Strategy: "hang", Network: testNetwork(t)})
	require.NoError(t, err)
	got = wait(t, done)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "deadline exceeded")
}

func TestRunner_UnknownStrategy(t *testing.T) {
	r, _ := newRunner(t, 0)
	_, err := r.Submit(jobs.KindVerify, &jobs.Request{Strategy: "nope"})
	assert.ErrorIs(t, err, jobs.ErrUnknownStrategy)
	_, ok := r.Current()
	assert.False(t, ok)

	r.RegisterVerifier("a", jobs.VerifierFunc(nil))
	assert.Panics(t, func() { r.RegisterVerifier("a", jobs.VerifierFunc(nil)) })
	assert.Equal(t, []string{"a"}, r.Strategies()[jobs.KindVerify])
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		out  string
		safe bool
	}{
		{"loading\nresult: unsat\n", true},
		{"Verified.", true},
		{"progress 10%\nSAT", false},
		{"property violated", false},
	}
	for _, tc := range cases {
		t.Run(tc.out, func(t *testing.T) {
			v, err := jobs.ParseVerdict(tc.out)
			require.NoError(t, err)
			assert.Equal(t, tc.safe, v.Safe)
		})
	}
	_, err := jobs.ParseVerdict("unknown\n")
	assert.Error(t, err)
}

func TestExecVerifier(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	v := jobs.ExecVerifier{Command: jobs.Command{
		Path: sh,
		Args: []string{"-c", `test -s "$1" && grep -q declare-const "$2" && echo checking && echo unsat`, "verify"},
	}}
	pre := &property.Container{SMT: "(assert (<= X_0 1))\n", Variables: []string{"X_0", "X_1"}}
	verdict, err := v.Verify(context.Background(), &jobs.Request{
		Network:  testNetwork(t),
		InputDim: network.Shape{2},
		Pre:      pre,
	}, slog.Default())
	require.NoError(t, err)
	assert.True(t, verdict.Safe)
}

func TestExecTrainer(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	tr := jobs.ExecTrainer{Command: jobs.Command{Path: sh, Args: []string{"-c", `cp "$1" "$2"`, "train"}}}
	nn, err := tr.Train(context.Background(), &jobs.Request{Network: testNetwork(t), InputDim: network.Shape{2}}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"fc"}, nn.IDs())

	bad := jobs.ExecTrainer{Command: jobs.Command{Path: sh, Args: []string{"-c", "exit 3", "train"}}}
	_, err = bad.Train(context.Background(), &jobs.Request{Network: testNetwork(t), InputDim: network.Shape{2}}, slog.Default())
	assert.Error(t, err)
}
