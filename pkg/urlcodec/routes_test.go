package urlcodec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	e "github.com/rmax-ai/wayfinder/pkg/entity"
)

const routesYAML = `
routes:
  - use_case: inventory
    entity: /main/inventory/:nodeId?
    list: /main/inventory/:nodeId?
    id_param: nodeId
    entity_type: NODE
  - use_case: rbac
    entity: /main/rbac/:kind/:name
    id_param: name
    type_param: kind
    segments:
      roles: ROLE
      subjects: SUBJECT
`

func TestDecodeRoutes(t *testing.T) {
	rf, err := DecodeRoutes(strings.NewReader(routesYAML))
	require.NoError(t, err)
	require.Len(t, rf.Routes, 2)
	assert.Equal(t, e.UseCase("inventory"), rf.Routes[0].UseCase)
	assert.Equal(t, e.Node, rf.Routes[0].EntityType)
	assert.Equal(t, e.Subject, rf.Routes[1].Segments["subjects"])

	_, err = DecodeRoutes(strings.NewReader("routes:\n  - use_case: x\n    bogus: 1\n"))
	assert.Error(t, err, "unknown fields are rejected")

	rf, err = DecodeRoutes(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rf.Routes)
}

func TestLoadRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(routesYAML), 0o600))

	r := NewRegistry()
	n, err := r.LoadRoutes(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s := r.Parse(LocationFromURL("/main/rbac/subjects/alice?workflowState[0][t]=ROLE"))
	assert.Equal(t, e.UseCase("rbac"), s.UseCase())
	assert.Equal(t, []e.Entity{e.Single(e.Subject, "alice"), e.List(e.Role)}, s.Stack())

	_, err = r.LoadRoutes(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRoutes_RejectsWorkflowOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	body := "routes:\n  - use_case: compliance\n    entity: /c/:id\n    id_param: id\n    entity_type: CLUSTER\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := NewRegistry().LoadRoutes(path)
	assert.ErrorIs(t, err, ErrReservedUseCase)
}

func TestLoadRoutes_AllOrNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(routesYAML), 0o600))

	r := NewRegistry()
	_, err := r.LoadRoutes(good)
	require.NoError(t, err)
	before, ok := r.PathMap("inventory")
	require.True(t, ok)

	// The first route is valid and changes inventory; the second is not.
	bad := filepath.Join(dir, "bad.yaml")
	body := "routes:\n" +
		"  - use_case: inventory\n    entity: /main/stock/:id\n    id_param: id\n    entity_type: NODE\n" +
		"  - use_case: fleet\n    entity: /main/fleet/:id\n    id_param: id\n    entity_type: NOPE\n"
	require.NoError(t, os.WriteFile(bad, []byte(body), 0o600))

	n, err := r.LoadRoutes(bad)
	require.Error(t, err)
	assert.Zero(t, n)

	after, ok := r.PathMap("inventory")
	require.True(t, ok)
	assert.Equal(t, before, after)
	_, ok = r.PathMap("fleet")
	assert.False(t, ok)
	assert.Equal(t, e.UseCase("inventory"), r.Parse(LocationFromURL("/main/inventory/n1")).UseCase())
	assert.Empty(t, r.Parse(LocationFromURL("/main/stock/n1")).UseCase())
}

func TestTemplate(t *testing.T) {
	tmpl := mustCompile("/main/:context/:id?/:tab?")

	params, ok := tmpl.match([]string{"main", "x"})
	require.True(t, ok)
	assert.Equal(t, map[string]string{"context": "x"}, params)

	_, ok = tmpl.match([]string{"other", "x"})
	assert.False(t, ok)

	_, ok = tmpl.match([]string{"main"})
	assert.False(t, ok, "required parameter missing")

	got, err := tmpl.expand(map[string]string{"context": "x", "id": "a b"})
	require.NoError(t, err)
	assert.Equal(t, "/main/x/a%20b", got)

	_, err = tmpl.expand(map[string]string{"context": "x", "tab": "t"})
	assert.Error(t, err, "value after a gap cannot be placed")

	_, err = compileTemplate("/main/:")
	assert.Error(t, err)
}
