package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"trace", "execsnoop", "sslsniff", "h2sniff"} {
		assert.True(t, names[want], want)
	}
}

func TestDaemons_RequireTaskID(t *testing.T) {
	for _, c := range []string{"execsnoop", "sslsniff", "h2sniff"} {
		t.Run(c, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{c})
			require.NoError(t, err)

			flag := cmd.Flags().Lookup("task-id")
			require.NotNil(t, flag)
			assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
		})
	}
}

func TestTrace_FlagsDoNotCarryDaemonTag(t *testing.T) {
	assert.Nil(t, traceCmd.Flags().Lookup("task-id"), "the stop scan would match the orchestrator itself")
	for short, long := range map[string]string{"s": "shell", "w": "workspace", "t": "task", "c": "commands"} {
		flag := traceCmd.Flags().ShorthandLookup(short)
		require.NotNil(t, flag, short)
		assert.Equal(t, long, flag.Name)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 3, exitCode(&exitError{code: 3}))
	assert.Equal(t, 1, exitCode(&exitError{code: 1, err: errors.New("daemon")}))
}
