package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHarvestID(t *testing.T) {
	id, err := parseHarvestID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, raw := range []string{"", "0", "-4", "abc"} {
		_, err := parseHarvestID(raw)
		assert.Error(t, err, raw)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := rootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"scan", "harvest", "worker", "cleanup"} {
		assert.True(t, names[want], want)
	}
}

func TestScanRequiresHarvestID(t *testing.T) {
	root := rootCommand()
	root.PersistentPreRunE = nil
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"scan"})
	assert.Error(t, root.Execute())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"cleaned": 2}))
	assert.JSONEq(t, `{"cleaned": 2}`, buf.String())
}
