package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "soberano")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "ingest")
	assert.Contains(t, out, "ask")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "soberano dev")
}

func TestUnknownCommandFails(t *testing.T) {
	_, err := execute(t, "frobnicate")
	require.Error(t, err)
}
