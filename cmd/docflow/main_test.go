package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"analyze", "classify", "query", "exemplars", "eval", "migrate"} {
		assert.True(t, names[want], want)
	}
}

func TestExemplarsAddRequiresLabel(t *testing.T) {
	cmd := exemplarsAddCmd()
	cmd.SetArgs([]string{"a.pdf"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label")
}

func TestEvalRequiresDataset(t *testing.T) {
	cmd := evalCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset")
}

func TestPrintJSONIndents(t *testing.T) {
	cmd := queryCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, printJSON(cmd, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", out.String())
}
