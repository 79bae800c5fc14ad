package configmgmt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
)

type mockTool struct {
	mock.Mock
}

func (m *mockTool) SyntaxCheck(ctx context.Context, inventory string) error {
	return m.Called(ctx, inventory).Error(0)
}

func (m *mockTool) Ping(ctx context.Context, inventory string, hosts []string) ([]PingResult, error) {
	args := m.Called(ctx, inventory, hosts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PingResult), args.Error(1)
}

func (m *mockTool) RunPlaybook(ctx context.Context, opts PlaybookOptions) (*RunResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RunResult), args.Error(1)
}

func newDriver(t *testing.T, tool Tool, opts ...Option) (*Driver, *config.Config) {
	t.Helper()
	cfg := config.Default().WithRoot(t.TempDir())
	return NewDriver(tool, cfg, config.LoadTimeouts(), logr.Discard(), opts...), cfg
}

func TestDriver_SyntaxCheck(t *testing.T) {
	t.Parallel()
	tool := &mockTool{}
	tool.On("SyntaxCheck", mock.Anything, "inv.yml").Return(errors.New("ERROR! no action detected")).Once()
	d, _ := newDriver(t, tool)

	err := d.SyntaxCheck(context.Background(), "inv.yml")
	var taskErr *deployment.ConfigurationTaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Contains(t, deployment.Diagnostic(err), "no action detected")
	tool.AssertExpectations(t)
}

func TestDriver_ConnectivityCheck(t *testing.T) {
	t.Parallel()

	t.Run("all reachable", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		hosts := []string{"web-1", "web-2"}
		tool.On("Ping", mock.Anything, "inv.yml", hosts).Return([]PingResult{
			{Host: "web-1", Reachable: true},
			{Host: "web-2", Reachable: true},
		}, nil).Once()
		d, _ := newDriver(t, tool)

		require.NoError(t, d.ConnectivityCheck(context.Background(), "inv.yml", hosts, time.Second))
		tool.AssertExpectations(t)
	})

	t.Run("lists every unreachable host", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		hosts := []string{"web-1", "web-2", "web-3"}
		tool.On("Ping", mock.Anything, "inv.yml", hosts).Return([]PingResult{
			{Host: "web-3", Message: "timed out"},
			{Host: "web-2", Reachable: true},
			{Host: "web-1", Message: "connection refused"},
		}, nil).Once()
		d, _ := newDriver(t, tool)

		err := d.ConnectivityCheck(context.Background(), "inv.yml", hosts, time.Second)
		var connErr *deployment.ConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, []string{"web-1", "web-3"}, connErr.Unreachable)
		assert.Equal(t, "connection refused", connErr.Details["web-1"])
		assert.Contains(t, err.Error(), "2 host(s) unreachable")
	})

	t.Run("no hosts", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		d, _ := newDriver(t, tool)
		require.NoError(t, d.ConnectivityCheck(context.Background(), "inv.yml", nil, time.Second))
		tool.AssertNotCalled(t, "Ping", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("tool failure", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		tool.On("Ping", mock.Anything, "inv.yml", []string{"web-1"}).Return(nil, errors.New("inventory parse error")).Once()
		d, _ := newDriver(t, tool)

		err := d.ConnectivityCheck(context.Background(), "inv.yml", []string{"web-1"}, time.Second)
		require.Error(t, err)
		var connErr *deployment.ConnectivityError
		assert.False(t, errors.As(err, &connErr))
		assert.Contains(t, err.Error(), "inventory parse error")
	})

	t.Run("timeout marks every host", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		tool.On("Ping", mock.Anything, "inv.yml", []string{"web-2", "web-1"}).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded).Once()
		d, _ := newDriver(t, tool)

		err := d.ConnectivityCheck(context.Background(), "inv.yml", []string{"web-2", "web-1"}, 20*time.Millisecond)
		var connErr *deployment.ConnectivityError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, []string{"web-1", "web-2"}, connErr.Unreachable)
	})
}

func TestDriver_Run(t *testing.T) {
	t.Parallel()

	t.Run("success without vault", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		d, cfg := newDriver(t, tool)
		cfg.Ansible.ExtraVars = map[string]any{"app_version": "1.2.3"}

		tool.On("RunPlaybook", mock.Anything, PlaybookOptions{
			Inventory: "inv.yml",
			ExtraVars: map[string]any{
				"deployment_environment": "staging",
				"app_version":            "1.2.3",
				"release":                "r42",
			},
		}).Return(&RunResult{Recap: Recap{"web-1": {OK: 10, Changed: 2}}}, nil).Once()

		result, err := d.Run(context.Background(), "inv.yml", deployment.EnvStaging, map[string]any{"release": "r42"})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Recap.Totals().Changed)
		tool.AssertExpectations(t)
	})

	t.Run("vault file and debug", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		d, cfg := newDriver(t, tool, WithDebug(true))
		require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.VaultFile), 0o750))
		require.NoError(t, os.WriteFile(cfg.Paths.VaultFile, []byte("secret"), 0o600))

		tool.On("RunPlaybook", mock.Anything, mock.MatchedBy(func(o PlaybookOptions) bool {
			return o.VaultPasswordFile == cfg.Paths.VaultFile && o.Verbose
		})).Return(&RunResult{}, nil).Once()

		_, err := d.Run(context.Background(), "inv.yml", deployment.EnvDev, nil)
		require.NoError(t, err)
		tool.AssertExpectations(t)
	})

	t.Run("failures are reported per host and task", func(t *testing.T) {
		t.Parallel()
		tool := &mockTool{}
		d, _ := newDriver(t, tool)
		failures := []deployment.TaskFailure{
			{Host: "web-1", Task: "nginx : Install nginx", Message: "no package"},
			{Host: "web-2", Task: "app : Deploy", Message: "disk full"},
		}
		tool.On("RunPlaybook", mock.Anything, mock.Anything).
			Return(&RunResult{Failures: failures, Output: "PLAY RECAP"}, errors.New("exit status 2")).Once()

		_, err := d.Run(context.Background(), "inv.yml", deployment.EnvDev, nil)
		var taskErr *deployment.ConfigurationTaskError
		require.ErrorAs(t, err, &taskErr)
		assert.Equal(t, failures, taskErr.Failures)
		assert.Equal(t, "configuration run failed on web-1: nginx : Install nginx; web-2: app : Deploy", err.Error())
		assert.Equal(t, "PLAY RECAP", deployment.Diagnostic(err))
		tool.AssertNumberOfCalls(t, "RunPlaybook", 1)
	})
}

func TestDriver_DryRun(t *testing.T) {
	t.Parallel()
	tool := &mockTool{}
	var seen string
	tool.On("SyntaxCheck", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		path := args.String(1)
		data, err := os.ReadFile(path)
		if err == nil {
			seen = string(data)
		}
	}).Return(nil).Once()
	d, cfg := newDriver(t, tool, WithDryRun(true))

	require.NoError(t, d.DryRun(context.Background(), []byte("all: {}\n"), deployment.EnvDev))
	assert.Equal(t, "all: {}\n", seen)
	assert.NoFileExists(t, cfg.Paths.Inventory)
	tool.AssertNotCalled(t, "RunPlaybook", mock.Anything, mock.Anything)
}
