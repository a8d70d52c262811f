package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"notary-signing-router/internal/domain"
)

const testMatrix = `
states:
  PA: {active: true, ron_allowed: true}
  OH: {active: true, ron_allowed: false, notes: "in-person only"}
  WY: {active: false, ron_allowed: true}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRouteCommandPrintsDecision(t *testing.T) {
	dir := t.TempDir()
	matrix := writeFile(t, dir, "states.yaml", testMatrix)
	order := writeFile(t, dir, "order.json", `{"id":"ord-1","state":"pa","signing_type":"ron","loan_type":"purchase"}`)
	vendors := writeFile(t, dir, "vendors.json", `[
		{"id":"v-b","name":"B","licensed_states":["PA"],"ron_authorized":true,"tier":"gold","performance_score":80,"active":true},
		{"id":"v-a","name":"A","licensed_states":["PA"],"ron_authorized":true,"tier":"gold","performance_score":80,"active":true},
		{"id":"v-c","name":"C","licensed_states":["NJ"],"ron_authorized":true,"tier":"platinum","performance_score":99,"active":true}
	]`)

	out, err := execute(t, "route", "--matrix", matrix, "--order", order, "--vendors", vendors)
	require.NoError(t, err)

	var d domain.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	require.True(t, d.Matched())
	require.Equal(t, "v-a", d.Selected.VendorID)
	require.Len(t, d.Ranked, 2)
	require.Equal(t, 3, d.Evaluated)
}

func TestRouteCommandRejectsInvalidOrder(t *testing.T) {
	dir := t.TempDir()
	matrix := writeFile(t, dir, "states.yaml", testMatrix)
	order := writeFile(t, dir, "order.json", `{"id":"ord-2","state":"PA","signing_type":"mobile"}`)
	vendors := writeFile(t, dir, "vendors.json", `[]`)

	_, err := execute(t, "route", "--matrix", matrix, "--order", order, "--vendors", vendors)
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestStatesCommand(t *testing.T) {
	matrix := writeFile(t, t.TempDir(), "states.yaml", testMatrix)

	out, err := execute(t, "states", "--matrix", matrix, "--active")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "STATE"))
	require.True(t, strings.HasPrefix(lines[1], "OH"))
	require.Contains(t, lines[1], "in-person only")
	require.True(t, strings.HasPrefix(lines[2], "PA"))
}
