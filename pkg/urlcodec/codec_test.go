package urlcodec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	e "github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

func L(t e.Type) e.Entity            { return e.List(t) }
func E(t e.Type, id string) e.Entity { return e.Single(t, id) }

var (
	testSort = workflow.Panels[workflow.Sort]{
		Page:      workflow.Sort{{ID: "name1", Desc: true}},
		SidePanel: workflow.Sort{{ID: "name2", Desc: false}},
	}
	testPaging = workflow.Panels[int]{Page: 1, SidePanel: 2}
)

func roundTrip(t *testing.T, s workflow.State) workflow.State {
	t.Helper()
	u, err := Generate(s)
	require.NoError(t, err)
	return ParseURL(u)
}

func TestGenerate_ComplianceListWithSidePanel(t *testing.T) {
	s := workflow.New(e.Compliance,
		[]e.Entity{L(e.Namespace), E(e.Namespace, "nsId"), L(e.Deployment)},
		workflow.WithSort(testSort),
		workflow.WithPaging(testPaging),
	)

	u, err := Generate(s)
	require.NoError(t, err)
	assert.Equal(t,
		"/main/compliance/namespaces?workflowState[0][t]=NAMESPACE&workflowState[0][i]=nsId&workflowState[1][t]=DEPLOYMENT"+
			"&sort[0][id]=name1&sort[0][desc]=true&sort2[0][id]=name2&sort2[0][desc]=false&p=1&p2=2",
		u)

	assert.True(t, s.Equal(ParseURL(u)))
}

func TestGenerate_Paths(t *testing.T) {
	tests := []struct {
		name  string
		state workflow.State
		want  string
	}{
		{"dashboard", workflow.New(e.VulnerabilityManagement, nil), "/main/vulnerability-management"},
		{"list", workflow.New(e.Compliance, []e.Entity{L(e.Cluster)}), "/main/compliance/clusters"},
		{"entity", workflow.New(e.VulnerabilityManagement, []e.Entity{E(e.Image, "sha256:abc")}), "/main/vulnerability-management/image/sha256:abc"},
		{"entity tab", workflow.New(e.VulnerabilityManagement, []e.Entity{E(e.Cluster, "c1"), L(e.ImageCVE)}), "/main/vulnerability-management/cluster/c1/image-cves"},
		{
			"entity tab row",
			workflow.New(e.VulnerabilityManagement, []e.Entity{E(e.Cluster, "c1"), L(e.ImageCVE), E(e.ImageCVE, "CVE-1")}),
			"/main/vulnerability-management/cluster/c1/image-cves?workflowState[0][t]=IMAGE_CVE&workflowState[0][i]=CVE-1",
		},
		{"id escaped once", workflow.New(e.Compliance, []e.Entity{E(e.Deployment, "a/b c")}), "/main/compliance/deployment/a%2Fb%20c"},
		{"escaped id not doubled", workflow.New(e.Compliance, []e.Entity{E(e.Deployment, "a%2Fb")}), "/main/compliance/deployment/a%2Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Generate(tt.state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate_SearchEncoding(t *testing.T) {
	s := workflow.New(e.Compliance, []e.Entity{L(e.Cluster)}, workflow.WithSearch(workflow.Panels[workflow.Search]{
		Page: workflow.Search{
			"Cluster Name": {"prod east"},
			"Label":        {"a&b=c", "d"},
		},
	}))

	u, err := Generate(s)
	require.NoError(t, err)
	assert.Equal(t, "/main/compliance/clusters?s[Cluster%20Name]=prod%20east&s[Label][0]=a%26b%3Dc&s[Label][1]=d", u)

	back := ParseURL(u)
	assert.Equal(t, s.Search(), back.Search())
}

func TestGenerate_ConfigManagementFold(t *testing.T) {
	tests := []struct {
		name  string
		stack []e.Entity
		want  string
	}{
		{
			"list row",
			[]e.Entity{L(e.Cluster), E(e.Cluster, "1")},
			"/main/configmanagement/clusters/1",
		},
		{
			"list row tab",
			[]e.Entity{L(e.Cluster), E(e.Cluster, "1"), L(e.Deployment)},
			"/main/configmanagement/clusters/1/deployments",
		},
		{
			"list row related entity",
			[]e.Entity{L(e.Cluster), E(e.Cluster, "1"), E(e.Deployment, "2")},
			"/main/configmanagement/clusters/1/deployment/2",
		},
		{
			"list row tab row",
			[]e.Entity{L(e.Cluster), E(e.Cluster, "1"), L(e.Deployment), E(e.Deployment, "2")},
			"/main/configmanagement/clusters/1/deployments?workflowState[0][t]=DEPLOYMENT&workflowState[0][i]=2",
		},
		{
			"entity tab row tab",
			[]e.Entity{E(e.Cluster, "1"), L(e.Deployment), E(e.Deployment, "2"), L(e.Secret)},
			"/main/configmanagement/cluster/1/deployments/2/secrets",
		},
		{
			"entity related entity stays in query",
			[]e.Entity{E(e.Cluster, "1"), E(e.Deployment, "2")},
			"/main/configmanagement/cluster/1?workflowState[0][t]=DEPLOYMENT&workflowState[0][i]=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := workflow.New(e.ConfigManagement, tt.stack)
			got, err := Generate(s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.stack, ParseURL(got).Stack())
		})
	}
}

func TestGenerate_FoldIsConfigManagementOnly(t *testing.T) {
	s := workflow.New(e.Compliance, []e.Entity{L(e.Cluster), E(e.Cluster, "1")})
	u, err := Generate(s)
	require.NoError(t, err)
	assert.Equal(t, "/main/compliance/clusters?workflowState[0][t]=CLUSTER&workflowState[0][i]=1", u)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(workflow.New("", []e.Entity{L(e.Cluster)}))
	assert.ErrorIs(t, err, ErrNoUseCase)

	_, err = Generate(workflow.New("no-such-area", nil))
	assert.ErrorIs(t, err, ErrUnknownUseCase)

	_, err = Generate(workflow.New(e.User, []e.Entity{L(e.Role)}))
	assert.ErrorIs(t, err, ErrNoPathTemplate)

	_, err = Generate(workflow.New(e.Compliance, []e.Entity{L(e.Standard)}))
	assert.ErrorIs(t, err, ErrNoPathTemplate)

	_, err = Generate(workflow.New(e.Risk, []e.Entity{E(e.Cluster, "1")}))
	assert.ErrorIs(t, err, ErrNoPathTemplate)

	s := workflow.New(e.Compliance, []e.Entity{L(e.Cluster)}, workflow.WithSort(workflow.Panels[workflow.Sort]{
		Page: workflow.Sort{{ID: "", Desc: true}},
	}))
	_, err = Generate(s)
	assert.ErrorIs(t, err, ErrMalformedSort)
}

func TestParse_Degrades(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unknown path", "/welcome?workflowState[0][t]=NOPE"},
		{"unknown context", "/main/nowhere"},
		{"unknown list", "/main/compliance/widgets"},
		{"too deep", "/main/compliance/clusters/1/a/b/c/d/e"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ParseURL(tt.url)
			assert.Empty(t, s.Stack())
		})
	}
}

func TestParse_UndeclaredTypes(t *testing.T) {
	vuln, ok := graph.ForUseCase(e.VulnerabilityManagement)
	require.True(t, ok)
	require.False(t, vuln.Has(e.Secret))

	t.Run("path list", func(t *testing.T) {
		s := ParseURL("/main/vulnerability-management/secrets")
		assert.Equal(t, e.VulnerabilityManagement, s.UseCase())
		assert.Empty(t, s.Stack())
	})

	t.Run("path entity", func(t *testing.T) {
		s := ParseURL("/main/vulnerability-management/secret/s1")
		assert.Empty(t, s.Stack())
	})

	t.Run("query frame cuts the rest", func(t *testing.T) {
		s := ParseURL("/main/vulnerability-management/clusters?" +
			"workflowState[0][t]=CLUSTER&workflowState[0][i]=c1" +
			"&workflowState[1][t]=SECRET&workflowState[2][t]=DEPLOYMENT")
		require.Equal(t, []e.Entity{L(e.Cluster), E(e.Cluster, "c1")}, s.Stack())

		assert.NotPanics(t, func() {
			next := s.PushList(e.Deployment).PushListItem("d1").PushList(e.Image)
			_, err := Generate(next)
			assert.NoError(t, err)
		})
	})

	t.Run("configuration graph keeps secrets", func(t *testing.T) {
		s := ParseURL("/main/configmanagement/secrets")
		assert.Equal(t, []e.Entity{L(e.Secret)}, s.Stack())
	})
}

func TestParse_MalformedQuery(t *testing.T) {
	s := ParseURL("/main/compliance/clusters?" +
		"workflowState[0][t]=BOGUS&workflowState[1][t]=DEPLOYMENT&workflowState[x][t]=NODE&workflowState[2]=1" +
		"&sort[0][desc]=true&sort[1][id]=name&sort[1][desc]=yes&sort[y][id]=z" +
		"&p=abc&p2=-3&s[k]=v&s[j][x]=w&%zz=1")

	assert.Equal(t, []e.Entity{L(e.Cluster), L(e.Deployment)}, s.Stack())
	assert.Equal(t, workflow.Sort{{ID: "name"}}, s.Sort().Page)
	assert.Zero(t, s.Paging().Page)
	assert.Zero(t, s.Paging().SidePanel)
	assert.Equal(t, workflow.Search{"k": {"v"}}, s.Search().Page)
}

func TestParse_EncodedBrackets(t *testing.T) {
	s := ParseURL("/main/compliance/clusters?workflowState%5B0%5D%5Bt%5D=DEPLOYMENT&p=3")
	assert.Equal(t, []e.Entity{L(e.Cluster), L(e.Deployment)}, s.Stack())
	assert.Equal(t, 3, s.Paging().Page)
}

func TestParse_EntityPage(t *testing.T) {
	s := ParseURL("/main/vulnerability-management/deployment/a%2Fb/image-cves?workflowState[0][t]=IMAGE_CVE&workflowState[0][i]=CVE-2021-1")
	assert.Equal(t, e.VulnerabilityManagement, s.UseCase())
	assert.Equal(t, []e.Entity{E(e.Deployment, "a/b"), L(e.ImageCVE), E(e.ImageCVE, "CVE-2021-1")}, s.Stack())
}

func TestMatch(t *testing.T) {
	m, ok := Default().Match("/main/configmanagement/cluster/1/deployments/2")
	require.True(t, ok)
	assert.Equal(t, e.ConfigManagement, m.UseCase)
	assert.Equal(t, PageEntity, m.PageType)
	assert.Equal(t, WorkflowEntityPath, m.Template)
	assert.Equal(t, "2", m.Params[ParamEntityID1])

	m, ok = Default().Match("/main/compliance")
	require.True(t, ok)
	assert.Equal(t, PageDashboard, m.PageType)

	_, ok = Default().Match("/main/compliance/widgets")
	assert.False(t, ok)
}

func TestLegacyPaths(t *testing.T) {
	tests := []struct {
		url     string
		useCase e.UseCase
		stack   []e.Entity
	}{
		{"/main/clusters/c1", e.Clusters, []e.Entity{E(e.Cluster, "c1")}},
		{"/main/clusters", e.Clusters, []e.Entity{L(e.Cluster)}},
		{"/main/risk/d1", e.Risk, []e.Entity{E(e.Deployment, "d1")}},
		{"/main/violations/a1", e.Violations, []e.Entity{E(e.Alert, "a1")}},
		{"/main/policy-management/policies/p1/edit", e.Policies, []e.Entity{E(e.Policy, "p1")}},
		{"/main/user/roles/Admin", e.User, []e.Entity{E(e.Role, "Admin")}},
		{"/main/access-control/auth-providers/ap1", e.AccessControl, []e.Entity{E(e.AuthProvider, "ap1")}},
		{"/main/access-control/access-scopes", e.AccessControl, []e.Entity{L(e.AccessScope)}},
		{"/main/access-control", e.AccessControl, nil},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			s := ParseURL(tt.url)
			assert.Equal(t, tt.useCase, s.UseCase())
			if tt.stack == nil {
				assert.Empty(t, s.Stack())
			} else {
				assert.Equal(t, tt.stack, s.Stack())
			}
		})
	}
}

func TestLegacyGenerate(t *testing.T) {
	u, err := Generate(workflow.New(e.Policies, []e.Entity{E(e.Policy, "p1")}))
	require.NoError(t, err)
	assert.Equal(t, "/main/policy-management/policies/p1", u)

	u, err = Generate(workflow.New(e.AccessControl, []e.Entity{E(e.PermissionSet, "ps1")}))
	require.NoError(t, err)
	assert.Equal(t, "/main/access-control/permission-sets/ps1", u)

	u, err = Generate(workflow.New(e.Risk, []e.Entity{E(e.Deployment, "d1"), L(e.Policy)}))
	require.NoError(t, err)
	assert.Equal(t, "/main/risk/d1?workflowState[0][t]=POLICY", u)
	assert.Equal(t, []e.Entity{E(e.Deployment, "d1"), L(e.Policy)}, ParseURL(u).Stack())
}

// Every state reachable by drilling down through related types survives a
// trip through its URL.
func TestRoundTrip_Traversal(t *testing.T) {
	search := workflow.Panels[workflow.Search]{
		Page:      workflow.Search{"Cluster": {"prod"}},
		SidePanel: workflow.Search{"Severity": {"LOW", "HIGH"}},
	}

	for _, uc := range e.WorkflowUseCases {
		g, ok := graph.ForUseCase(uc)
		require.True(t, ok)

		var walk func(s workflow.State, depth int)
		walk = func(s workflow.State, depth int) {
			s = workflow.New(s.UseCase(), s.Stack(),
				workflow.WithSearch(search), workflow.WithSort(testSort), workflow.WithPaging(testPaging))
			back := roundTrip(t, s)
			if !assert.True(t, s.Equal(back), "%s: %v", uc, s.Stack()) {
				return
			}
			if depth == 0 {
				return
			}
			row := s.PushListItem("id-" + string(s.CurrentEntityType()))
			assert.True(t, row.Equal(roundTrip(t, row)), "%s: %v", uc, row.Stack())

			cur := s.CurrentEntityType()
			for _, next := range append(g.Children(cur), g.Matches(cur)...) {
				if next == e.Standard {
					continue
				}
				walk(row.PushList(next), depth-1)
			}
		}

		for _, typ := range g.Types() {
			if typ == e.Standard {
				continue
			}
			walk(workflow.New(uc, nil).PushList(typ), 2)
			walk(workflow.New(uc, nil).Reset(uc, typ, "root"), 0)
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	err := r.Register(e.Compliance, PathMap{Entity: "/x/:id", IDParam: "id", EntityType: e.Cluster})
	assert.True(t, errors.Is(err, ErrReservedUseCase))

	err = r.Register("inventory", PathMap{Entity: "/main/inventory/:nodeId?", IDParam: "nodeId", EntityType: "BOGUS"})
	assert.Error(t, err)

	err = r.Register("inventory", PathMap{Entity: "main/inventory", IDParam: "nodeId", EntityType: e.Node})
	assert.Error(t, err)

	require.NoError(t, r.Register("inventory", PathMap{
		List:       "/main/inventory/:nodeId?",
		Entity:     "/main/inventory/:nodeId?",
		IDParam:    "nodeId",
		EntityType: e.Node,
	}))

	s := r.Parse(LocationFromURL("/main/inventory/n1"))
	assert.Equal(t, e.UseCase("inventory"), s.UseCase())
	assert.Equal(t, []e.Entity{E(e.Node, "n1")}, s.Stack())

	u, err := r.Generate(workflow.New("inventory", []e.Entity{E(e.Node, "n2")}))
	require.NoError(t, err)
	assert.Equal(t, "/main/inventory/n2", u)

	assert.Contains(t, r.UseCases(), e.UseCase("inventory"))
	_, ok := Default().PathMap("inventory")
	assert.False(t, ok, "registries are independent")
}
