package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/progress"
	"github.com/the-maldridge/tess/pkg/session"
	"github.com/the-maldridge/tess/pkg/types"
)

// scripted fails each package according to its list of errors and
// then succeeds.
type scripted struct {
	errs  map[string][]error
	calls []string
}

func (s *scripted) Build(_ context.Context, u types.BuildUnit) (*session.Result, error) {
	s.calls = append(s.calls, u.Name)
	if q := s.errs[u.Name]; len(q) > 0 {
		s.errs[u.Name] = q[1:]
		if q[0] != nil {
			return &session.Result{Unit: u.Name}, q[0]
		}
	}
	return &session.Result{Unit: u.Name}, nil
}

type sleeps struct{ waits []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func connErr(pkg string) error {
	return builderr.New(builderr.KindConnection, pkg, "refused")
}

func TestAlwaysFailingUnitUsesEveryAttempt(t *testing.T) {
	b := &scripted{errs: map[string][]error{
		"foo": {connErr("foo"), connErr("foo"), connErr("foo"), connErr("foo"), connErr("foo")},
	}}
	s := &sleeps{}
	tr := progress.New(nil)
	c := New(hclog.NewNullLogger(), Policy{Attempts: 4, Delay: 2 * time.Second}, b,
		WithSleep(s.sleep), WithTracker(tr))

	_, err := c.Unit(context.Background(), types.BuildUnit{Name: "foo"})
	require.Error(t, err)

	assert.Len(t, b.calls, 4)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, s.waits)
	assert.EqualError(t, err, "failed to build foo after 4 attempts: connection error: foo: refused")

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 4, ex.Attempts)
	assert.True(t, builderr.Is(err, builderr.KindConnection))

	rec, _ := tr.Get("foo")
	assert.Equal(t, progress.StatusFailed, rec.Status)
	assert.Equal(t, 4, rec.Attempt)
}

func TestArchiveErrorIsNotRetried(t *testing.T) {
	b := &scripted{errs: map[string][]error{
		"foo": {builderr.New(builderr.KindArchive, "foo", "declared source file is missing")},
	}}
	s := &sleeps{}
	c := New(hclog.NewNullLogger(), DefaultPolicy(), b, WithSleep(s.sleep))

	_, err := c.Run(context.Background(), []types.BuildUnit{{Name: "foo"}, {Name: "bar", Dependencies: []string{"foo"}}})
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindArchive))
	assert.Equal(t, []string{"foo"}, b.calls)
	assert.Empty(t, s.waits)
}

func TestHandshakeErrorAbortsRun(t *testing.T) {
	b := &scripted{errs: map[string][]error{
		"a": {builderr.New(builderr.KindHandshake, "a", "no ack")},
	}}
	c := New(hclog.NewNullLogger(), DefaultPolicy(), b, WithSleep((&sleeps{}).sleep))
	_, err := c.Run(context.Background(), []types.BuildUnit{{Name: "a"}, {Name: "b"}})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, b.calls)
}

func TestBuildErrorRetryIsAPolicy(t *testing.T) {
	fail := func() error { return builderr.New(builderr.KindServerBuild, "foo", "E0432") }

	b := &scripted{errs: map[string][]error{"foo": {fail(), fail(), fail()}}}
	p := DefaultPolicy()
	p.RetryBuildErrors = false
	_, err := New(hclog.NewNullLogger(), p, b, WithSleep((&sleeps{}).sleep)).Unit(context.Background(), types.BuildUnit{Name: "foo"})
	require.Error(t, err)
	assert.Len(t, b.calls, 1)

	b = &scripted{errs: map[string][]error{"foo": {fail(), fail(), fail()}}}
	_, err = New(hclog.NewNullLogger(), DefaultPolicy(), b, WithSleep((&sleeps{}).sleep)).Unit(context.Background(), types.BuildUnit{Name: "foo"})
	require.Error(t, err)
	assert.Len(t, b.calls, 3)
	assert.Contains(t, err.Error(), "foo")
	assert.Contains(t, err.Error(), "E0432")
}

func TestLaterUnitWaitsForEarlier(t *testing.T) {
	b := &scripted{errs: map[string][]error{
		"core": {connErr("core"), nil},
	}}
	c := New(hclog.NewNullLogger(), DefaultPolicy(), b, WithSleep((&sleeps{}).sleep))
	res, err := c.Run(context.Background(), []types.BuildUnit{
		{Name: "app", Dependencies: []string{"core"}},
		{Name: "core"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "core", "app"}, b.calls)
	require.Len(t, res, 2)
	assert.Equal(t, "core", res[0].Unit)
}

func TestCycleFailsBeforeBuilding(t *testing.T) {
	b := &scripted{}
	c := New(hclog.NewNullLogger(), DefaultPolicy(), b)
	_, err := c.Run(context.Background(), []types.BuildUnit{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
	})
	require.Error(t, err)
	assert.True(t, builderr.Is(err, builderr.KindGraphCycle))
	assert.Empty(t, b.calls)
}

func TestCancelledWhileWaiting(t *testing.T) {
	b := &scripted{errs: map[string][]error{"foo": {connErr("foo"), connErr("foo")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(hclog.NewNullLogger(), Policy{Attempts: 3, Delay: time.Hour}, b)
	_, err := c.Unit(ctx, types.BuildUnit{Name: "foo"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.calls, 1)
}
