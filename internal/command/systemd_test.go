package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeSystemctl = `#!/bin/sh
verb="$1"
unit="$2"
case "$verb" in
is-active)
	case "$unit" in
	web) echo active; exit 0 ;;
	slow) sleep 5 ;;
	ghost) echo inactive; exit 4 ;;
	*) echo inactive; exit 3 ;;
	esac
	;;
status)
	case "$unit" in
	idle) echo "   Active: inactive (dead)"; exit 3 ;;
	broken) echo "   Active: failed (Result: exit-code)"; exit 3 ;;
	ghost) echo "Unit ghost.service could not be found." >&2; exit 4 ;;
	odd) echo "   Active: activating (auto-restart)"; exit 3 ;;
	*) echo "   Active: active (running)"; exit 0 ;;
	esac
	;;
*)
	case "$unit" in
	locked) echo "Access denied" >&2; exit 1 ;;
	slow) sleep 5 ;;
	*) exit 0 ;;
	esac
	;;
esac
`

func newSystemdExecutor(t *testing.T) *Executor {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "systemctl")
	require.NoError(t, os.WriteFile(path, []byte(fakeSystemctl), 0o755))
	return NewExecutor(Options{
		WorkingDir:    dir,
		OutputCap:     500,
		SystemctlPath: path,
		WaitDelay:     500 * time.Millisecond,
	}, nil)
}

func TestProbeStatus(t *testing.T) {
	runner := newSystemdExecutor(t)

	cases := []struct {
		service string
		want    ServiceState
	}{
		{"web", StateActive},
		{"idle", StateInactive},
		{"broken", StateFailed},
		{"ghost", StateNotFound},
		{"odd", StateUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.service, func(t *testing.T) {
			res := runner.Run(context.Background(), ServiceTarget(tc.service, ActionStatus), 5*time.Second)
			require.Equal(t, StatusCompleted, res.Status)
			assert.Equal(t, tc.want, res.ServiceState)
			assert.Equal(t, "Service "+tc.service+" is "+string(tc.want), res.Message)
		})
	}
}

func TestProbeStatusTimeout(t *testing.T) {
	runner := newSystemdExecutor(t)

	res := runner.Run(context.Background(), ServiceTarget("slow", ActionStatus), 300*time.Millisecond)
	require.Equal(t, StatusTimedOut, res.Status)
	assert.Equal(t, StateTimeout, res.ServiceState)
}

func TestProbeStatusMissingBinary(t *testing.T) {
	runner := NewExecutor(Options{SystemctlPath: filepath.Join(t.TempDir(), "missing")}, nil)

	res := runner.Run(context.Background(), ServiceTarget("web", ActionStatus), time.Second)
	require.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StateUnknown, res.ServiceState)
	assert.NotEmpty(t, res.Error)
}

func TestServiceActionSuccess(t *testing.T) {
	runner := newSystemdExecutor(t)

	res := runner.Run(context.Background(), ServiceTarget("squid", ActionRestart), 5*time.Second)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Service squid restarted successfully", res.Message)
}

func TestServiceActionFailure(t *testing.T) {
	runner := newSystemdExecutor(t)

	res := runner.Run(context.Background(), ServiceTarget("locked", ActionStop), 5*time.Second)
	require.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Output, "Access denied")
}

func TestServiceActionTimeout(t *testing.T) {
	runner := newSystemdExecutor(t)

	res := runner.Run(context.Background(), ServiceTarget("slow", ActionStart), 300*time.Millisecond)
	require.Equal(t, StatusTimedOut, res.Status)
}

func TestServiceActionUsesSudo(t *testing.T) {
	runner := NewExecutor(Options{UseSudo: true, SudoPath: "/usr/bin/sudo", SystemctlPath: "/bin/systemctl"}, nil)

	name, args := runner.systemctlArgv(true, "restart", "squid")
	assert.Equal(t, "/usr/bin/sudo", name)
	assert.Equal(t, []string{"-n", "/bin/systemctl", "restart", "squid"}, args)

	name, args = runner.systemctlArgv(false, "is-active", "squid")
	assert.Equal(t, "/bin/systemctl", name)
	assert.Equal(t, []string{"is-active", "squid"}, args)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, StateNotFound, ClassifyStatus("", "Unit foo.service could not be found."))
	assert.Equal(t, StateInactive, ClassifyStatus("Active: inactive (dead)", ""))
	assert.Equal(t, StateFailed, ClassifyStatus("Active: failed", ""))
	assert.Equal(t, StateUnknown, ClassifyStatus("", ""))
}
