package role

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflexsoar/reflex-agent-go/internal/agenterrors"
	"github.com/reflexsoar/reflex-agent-go/internal/connection"
)

type countingRole struct {
	calls int32
	err   error
}

func (r *countingRole) Main(ctx context.Context) error {
	atomic.AddInt32(&r.calls, 1)
	return r.err
}

func (r *countingRole) ShortName() string { return "counting" }

func TestRunStopsAfterMaxLoopCount(t *testing.T) {
	r := &countingRole{}
	runner := NewRunner(r, RunnerConfig{WaitInterval: time.Millisecond, MaxLoopCount: 3}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	runner.Run(ctx)

	assert.Equal(t, int32(3), atomic.LoadInt32(&r.calls))
}

func TestRunDisableRunLoopCallsOnce(t *testing.T) {
	r := &countingRole{}
	runner := NewRunner(r, RunnerConfig{DisableRunLoop: true}, nil, nil, nil)

	runner.Run(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestRunSwallowsMainErrorsAndContinues(t *testing.T) {
	r := &countingRole{err: errors.New("boom")}
	runner := NewRunner(r, RunnerConfig{WaitInterval: time.Millisecond, MaxLoopCount: 2}, nil, nil, nil)
	runner.Run(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&r.calls))
}

func TestStopBlocksUntilLoopExits(t *testing.T) {
	r := &countingRole{}
	runner := NewRunner(r, RunnerConfig{WaitInterval: time.Hour}, nil, nil, nil)

	go runner.Run(context.Background())
	time.Sleep(10 * time.Millisecond)
	runner.Stop(false)

	select {
	case <-runner.Done():
	default:
		t.Fatal("expected runner to have exited after Stop")
	}
}

func TestUnshareDefaultConnectionForbidden(t *testing.T) {
	r := &countingRole{}
	registry := connection.NewRegistry()
	runner := NewRunner(r, RunnerConfig{}, registry, nil, nil)

	err := runner.UnshareConnection(connection.Default)
	assert.True(t, errors.Is(err, agenterrors.ErrForbiddenConnectionName))
}

func TestShareDefaultConnectionForbidden(t *testing.T) {
	r := &countingRole{}
	registry := connection.NewRegistry()
	runner := NewRunner(r, RunnerConfig{}, registry, nil, nil)

	err := runner.ShareConnection(&connection.Connection{Name: connection.Default})
	assert.True(t, errors.Is(err, agenterrors.ErrForbiddenConnectionName))
}

func TestShareAndGetConnection(t *testing.T) {
	r := &countingRole{}
	registry := connection.NewRegistry()
	runner := NewRunner(r, RunnerConfig{}, registry, nil, nil)

	conn := &connection.Connection{Name: "extra", URL: "https://example.com"}
	require.NoError(t, runner.ShareConnection(conn))
	assert.Equal(t, conn, runner.GetConnection("extra"))
}

func TestLoadInputsReturnsRegisteredAliases(t *testing.T) {
	r := &countingRole{}
	runner := NewRunner(r, RunnerConfig{}, nil, nil, nil)
	inputs := runner.LoadInputs()
	assert.NotNil(t, inputs)
}
