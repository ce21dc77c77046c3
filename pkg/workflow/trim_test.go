package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	e "github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
)

func TestPushList_Trim(t *testing.T) {
	cfg, vuln := e.ConfigManagement, e.VulnerabilityManagement

	tests := []struct {
		name    string
		useCase e.UseCase
		stack   []e.Entity
		push    e.Type
		want    []e.Entity
	}{
		{
			name:    "entity page keeps preceding entity",
			useCase: vuln,
			stack:   stack(E(e.Deployment, "1")),
			push:    e.Namespace,
			want:    stack(E(e.Deployment, "1"), L(e.Namespace)),
		},
		{
			name:    "list page keeps selected row",
			useCase: vuln,
			stack:   stack(L(e.Deployment), E(e.Deployment, "1")),
			push:    e.Namespace,
			want:    stack(L(e.Deployment), E(e.Deployment, "1"), L(e.Namespace)),
		},
		{
			name:    "repeated list type",
			useCase: cfg,
			stack:   stack(L(e.Deployment), E(e.Deployment, "1"), L(e.Namespace), E(e.Namespace, "2"), L(e.Secret), E(e.Secret, "3")),
			push:    e.Deployment,
			want:    stack(E(e.Secret, "3"), L(e.Deployment)),
		},
		{
			name:    "parent after child",
			useCase: cfg,
			stack:   stack(L(e.Cluster), E(e.Cluster, "1"), L(e.Image), E(e.Image, "2"), E(e.Deployment, "3")),
			push:    e.ServiceAccount,
			want:    stack(E(e.Deployment, "3"), L(e.ServiceAccount)),
		},
		{
			name:    "parent after child in vulnerability graph",
			useCase: vuln,
			stack:   stack(L(e.Deployment), E(e.Deployment, "1"), E(e.Cluster, "2")),
			push:    e.Namespace,
			want:    stack(E(e.Cluster, "2"), L(e.Namespace)),
		},
		{
			name:    "parent after child without lists",
			useCase: cfg,
			stack:   stack(E(e.Deployment, "1"), E(e.Namespace, "2"), E(e.Secret, "3")),
			push:    e.Deployment,
			want:    stack(E(e.Secret, "3"), L(e.Deployment)),
		},
		{
			name:    "image then deployment then service account",
			useCase: cfg,
			stack:   stack(E(e.Cluster, "1"), E(e.Image, "2"), E(e.Deployment, "3")),
			push:    e.ServiceAccount,
			want:    stack(E(e.Deployment, "3"), L(e.ServiceAccount)),
		},
		{
			name:    "image to deployments",
			useCase: vuln,
			stack:   stack(L(e.Image), E(e.Image, "1")),
			push:    e.Deployment,
			want:    stack(L(e.Image), E(e.Image, "1"), L(e.Deployment)),
		},
		{
			name:    "cve to deployments",
			useCase: vuln,
			stack:   stack(L(e.ImageCVE), E(e.ImageCVE, "1")),
			push:    e.Deployment,
			want:    stack(L(e.ImageCVE), E(e.ImageCVE, "1"), L(e.Deployment)),
		},
		{
			name:    "component to images",
			useCase: vuln,
			stack:   stack(L(e.ImageComponent), E(e.ImageComponent, "1")),
			push:    e.Image,
			want:    stack(L(e.ImageComponent), E(e.ImageComponent, "1"), L(e.Image)),
		},
		{
			name:    "match after match",
			useCase: cfg,
			stack:   stack(E(e.Deployment, "1"), E(e.Secret, "3")),
			push:    e.Namespace,
			want:    stack(E(e.Secret, "3"), L(e.Namespace)),
		},
		{
			name:    "match after match with lists",
			useCase: cfg,
			stack:   stack(L(e.Deployment), E(e.Deployment, "1"), L(e.Secret), E(e.Secret, "3")),
			push:    e.Namespace,
			want:    stack(E(e.Secret, "3"), L(e.Namespace)),
		},
		{
			name:    "image component cve",
			useCase: vuln,
			stack:   stack(E(e.Image, "2"), L(e.ImageComponent), E(e.ImageComponent, "3")),
			push:    e.ImageCVE,
			want:    stack(E(e.Image, "2"), L(e.ImageComponent), E(e.ImageComponent, "3"), L(e.ImageCVE)),
		},
		{
			name:    "image list component cve",
			useCase: vuln,
			stack:   stack(L(e.Image), E(e.Image, "1"), L(e.ImageComponent), E(e.ImageComponent, "2")),
			push:    e.ImageCVE,
			want:    stack(L(e.Image), E(e.Image, "1"), L(e.ImageComponent), E(e.ImageComponent, "2"), L(e.ImageCVE)),
		},
		{
			name:    "cluster namespace deployment component",
			useCase: vuln,
			stack:   stack(L(e.Cluster), E(e.Cluster, "1"), L(e.Namespace), E(e.Namespace, "2"), L(e.Deployment), E(e.Deployment, "3")),
			push:    e.ImageComponent,
			want:    stack(L(e.Cluster), E(e.Cluster, "1"), L(e.Namespace), E(e.Namespace, "2"), L(e.Deployment), E(e.Deployment, "3"), L(e.ImageComponent)),
		},
		{
			name:    "cluster namespace deployment cve",
			useCase: vuln,
			stack:   stack(L(e.Cluster), E(e.Cluster, "1"), L(e.Namespace), E(e.Namespace, "2"), L(e.Deployment), E(e.Deployment, "3")),
			push:    e.ImageCVE,
			want:    stack(L(e.Cluster), E(e.Cluster, "1"), L(e.Namespace), E(e.Namespace, "2"), L(e.Deployment), E(e.Deployment, "3"), L(e.ImageCVE)),
		},
		{
			name:    "deployment after image drill-down",
			useCase: vuln,
			stack:   stack(E(e.Cluster, "1"), E(e.Deployment, "2"), L(e.Image), E(e.Image, "3")),
			push:    e.Deployment,
			want:    stack(E(e.Image, "3"), L(e.Deployment)),
		},
		{
			name:    "image list opened twice",
			useCase: vuln,
			stack:   stack(E(e.Cluster, "1"), E(e.Deployment, "2"), L(e.Image), E(e.Image, "3"), L(e.ImageComponent), E(e.ImageComponent, "1")),
			push:    e.Image,
			want:    stack(E(e.ImageComponent, "1"), L(e.Image)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.useCase, tt.stack).PushList(tt.push)
			assert.Equal(t, tt.want, got.Stack())
		})
	}
}

func TestPushList_TrimClearsPaging(t *testing.T) {
	s := New(e.VulnerabilityManagement,
		stack(L(e.Image), E(e.Image, "1"), L(e.ImageComponent), E(e.ImageComponent, "2"), L(e.ImageCVE), E(e.ImageCVE, "3")),
		WithPaging(Panels[int]{Page: 2}),
	)
	got := s.PushList(e.Deployment)
	assert.Equal(t, stack(E(e.ImageCVE, "3"), L(e.Deployment)), got.Stack())
	assert.Zero(t, got.Paging().Page)
}

func TestPushList_ValidKeepsPaging(t *testing.T) {
	s := New(e.VulnerabilityManagement,
		stack(L(e.Cluster), E(e.Namespace, "2")),
		WithPaging(Panels[int]{Page: 2}),
	)
	got := s.PushList(e.Image)
	assert.Equal(t, stack(L(e.Cluster), E(e.Namespace, "2"), L(e.Image)), got.Stack())
	assert.Equal(t, 2, got.Paging().Page)
}

func TestPushRelatedEntity_Trim(t *testing.T) {
	cfg, vuln := e.ConfigManagement, e.VulnerabilityManagement

	tests := []struct {
		name    string
		useCase e.UseCase
		stack   []e.Entity
		push    e.Entity
		want    []e.Entity
	}{
		{"from entity page", vuln, stack(E(e.Deployment, "1")), E(e.Policy, "2"), stack(E(e.Deployment, "1"), E(e.Policy, "2"))},
		{"from list row", vuln, stack(L(e.Deployment), E(e.Deployment, "1")), E(e.Policy, "2"), stack(L(e.Deployment), E(e.Deployment, "1"), E(e.Policy, "2"))},
		{"parent after children", cfg, stack(E(e.Image, "1"), E(e.Deployment, "2"), E(e.Namespace, "3")), E(e.Cluster, "2"), stack(E(e.Cluster, "2"))},
		{"parent after children with lists", cfg, stack(L(e.Image), E(e.Image, "1"), L(e.Deployment), E(e.Deployment, "2"), L(e.Namespace), E(e.Namespace, "3")), E(e.Cluster, "2"), stack(E(e.Cluster, "2"))},
		{"parent after matches", cfg, stack(E(e.Namespace, "1"), E(e.Policy, "2"), E(e.Deployment, "3")), E(e.Cluster, "1"), stack(E(e.Cluster, "1"))},
		{"parent after matches with lists", cfg, stack(L(e.Namespace), E(e.Namespace, "1"), L(e.Policy), E(e.Policy, "2"), L(e.Deployment), E(e.Deployment, "3")), E(e.Cluster, "1"), stack(E(e.Cluster, "1"))},
		{"repeated entity type", vuln, stack(L(e.ImageCVE), E(e.ImageCVE, "1"), L(e.Image), E(e.Image, "2")), E(e.ImageCVE, "3"), stack(E(e.ImageCVE, "3"))},
		{"repeated entity type without base list", vuln, stack(E(e.ImageCVE, "1"), L(e.Image), E(e.Image, "2")), E(e.ImageCVE, "3"), stack(E(e.ImageCVE, "3"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.useCase, tt.stack).PushRelatedEntity(tt.push.Type, tt.push.ID)
			assert.Equal(t, tt.want, got.Stack())
		})
	}
}

func TestValidStack(t *testing.T) {
	assert.True(t, ValidStack(graph.Configuration, nil))
	assert.False(t, ValidStack(nil, stack(L(e.Alert), L(e.Alert))))
	assert.True(t, ValidStack(nil, stack(L(e.Alert), E(e.Alert, "1"))))
	assert.True(t, ValidStack(graph.Vulnerability, stack(E(e.Deployment, "1"), E(e.Cluster, "2"))), "two distinct types are always valid")
	assert.False(t, ValidStack(graph.Vulnerability, stack(E(e.Deployment, "1"), E(e.Cluster, "2"), L(e.Namespace))))
}

func TestSkim(t *testing.T) {
	assert.Empty(t, Skim(nil))
	assert.Equal(t, stack(L(e.Cluster)), Skim(stack(L(e.Cluster))))
	assert.Equal(t, stack(E(e.Deployment, "2")), Skim(stack(L(e.Cluster), E(e.Cluster, "1"), E(e.Deployment, "2"))))
	assert.Equal(t, stack(E(e.Cluster, "1"), L(e.Deployment)), Skim(stack(L(e.Cluster), E(e.Cluster, "1"), L(e.Deployment))))
}

// Every reachable drill-down either grows by a row and a list or collapses
// to at most two frames.
func TestTraversal_StaysBounded(t *testing.T) {
	g := graph.Vulnerability

	var walk func(t *testing.T, s State, depth int)
	walk = func(t *testing.T, s State, depth int) {
		if depth == 0 {
			return
		}
		in := map[e.Type]bool{}
		for _, f := range s.Stack() {
			in[f.Type] = true
		}
		row := s.PushListItem("id")
		related := append(append(g.Children(s.CurrentEntityType()), g.Parents(s.CurrentEntityType())...), g.Matches(s.CurrentEntityType())...)
		for _, next := range related {
			if in[next] {
				continue
			}
			var got State
			assert.NotPanics(t, func() { got = row.PushList(next) })
			if got.Len() != s.Len()+2 {
				assert.LessOrEqual(t, got.Len(), 2, "%v -> %s", s.Stack(), next)
				continue
			}
			walk(t, got, depth-1)
		}
	}

	for _, typ := range g.Types() {
		walk(t, New(e.VulnerabilityManagement, nil).PushList(typ), 3)
	}
}
