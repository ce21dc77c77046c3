package urlcodec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rmax-ai/wayfinder/pkg/entity"
)

// PageType classifies a URL by the frames its path carries.
type PageType string

const (
	PageDashboard PageType = "DASHBOARD"
	PageList      PageType = "LIST"
	PageEntity    PageType = "ENTITY"
)

// Workflow template parameters.
const (
	ParamContext            = "context"
	ParamPageEntityListType = "pageEntityListType"
	ParamPageEntityType     = "pageEntityType"
	ParamPageEntityID       = "pageEntityId"
	ParamEntityType1        = "entityType1"
	ParamEntityID1          = "entityId1"
	ParamEntityType2        = "entityType2"
	ParamEntityID2          = "entityId2"
)

// Workflow path templates shared by every workflow use case.
const (
	WorkflowDashboardPath = "/main/:context"
	WorkflowListPath      = "/main/:context/:pageEntityListType/:entityId1?/:entityType2?/:entityId2?"
	WorkflowEntityPath    = "/main/:context/:pageEntityType/:pageEntityId?/:entityType1?/:entityId1?/:entityType2?/:entityId2?"
)

// PathMap holds the path templates of one use case, one per page type. An
// empty template means the use case has no URL for that page type.
//
// Workflow maps resolve entity types from the named path segments. Other
// maps carry the page entity in IDParam, typed by EntityType or by the
// Segments lookup on TypeParam.
type PathMap struct {
	Dashboard string `yaml:"dashboard" json:"dashboard,omitempty"`
	List      string `yaml:"list" json:"list,omitempty"`
	Entity    string `yaml:"entity" json:"entity,omitempty"`

	IDParam    string                 `yaml:"id_param" json:"id_param,omitempty"`
	EntityType entity.Type            `yaml:"entity_type" json:"entity_type,omitempty"`
	TypeParam  string                 `yaml:"type_param" json:"type_param,omitempty"`
	Segments   map[string]entity.Type `yaml:"segments" json:"segments,omitempty"`

	workflow bool
}

// Workflow reports whether m uses the generic workflow templates.
func (m PathMap) Workflow() bool { return m.workflow }

// Template returns the raw template for pt.
func (m PathMap) Template(pt PageType) string {
	switch pt {
	case PageDashboard:
		return m.Dashboard
	case PageList:
		return m.List
	case PageEntity:
		return m.Entity
	}
	return ""
}

func (m PathMap) segmentFor(t entity.Type) (string, bool) {
	for seg, st := range m.Segments {
		if st == t {
			return seg, true
		}
	}
	return "", false
}

// compiledMap is a PathMap with its templates parsed.
type compiledMap struct {
	useCase entity.UseCase
	paths   PathMap
	byPage  map[PageType]pathTemplate
}

func compileMap(uc entity.UseCase, m PathMap) (compiledMap, error) {
	cm := compiledMap{useCase: uc, paths: m, byPage: map[PageType]pathTemplate{}}
	for _, pt := range []PageType{PageEntity, PageList, PageDashboard} {
		raw := m.Template(pt)
		if raw == "" {
			continue
		}
		t, err := compileTemplate(raw)
		if err != nil {
			return compiledMap{}, fmt.Errorf("use case %s: %w", uc, err)
		}
		cm.byPage[pt] = t
	}
	if len(cm.byPage) == 0 {
		return compiledMap{}, fmt.Errorf("use case %s: no templates", uc)
	}
	if m.workflow {
		return cm, nil
	}
	if m.IDParam == "" {
		return compiledMap{}, fmt.Errorf("use case %s: id_param is required", uc)
	}
	if m.TypeParam == "" && !m.EntityType.Valid() {
		return compiledMap{}, fmt.Errorf("use case %s: unknown entity_type %q", uc, m.EntityType)
	}
	for seg, t := range m.Segments {
		if !t.Valid() {
			return compiledMap{}, fmt.Errorf("use case %s: segment %q has unknown type %q", uc, seg, t)
		}
	}
	return cm, nil
}

func workflowPaths() PathMap {
	return PathMap{
		Dashboard: WorkflowDashboardPath,
		List:      WorkflowListPath,
		Entity:    WorkflowEntityPath,
		workflow:  true,
	}
}

func legacyPaths(template, idParam string, t entity.Type) PathMap {
	return PathMap{Dashboard: template, List: template, Entity: template, IDParam: idParam, EntityType: t}
}

// DefaultPaths returns the built-in path maps.
func DefaultPaths() map[entity.UseCase]PathMap {
	m := map[entity.UseCase]PathMap{
		entity.Clusters:   legacyPaths("/main/clusters/:clusterId?", "clusterId", entity.Cluster),
		entity.Risk:       legacyPaths("/main/risk/:deploymentId?", "deploymentId", entity.Deployment),
		entity.Violations: legacyPaths("/main/violations/:alertId?", "alertId", entity.Alert),
		entity.Policies:   legacyPaths("/main/policy-management/policies/:policyId?/:command?", "policyId", entity.Policy),
		entity.User: {
			Entity:     "/main/user/roles/:roleName",
			IDParam:    "roleName",
			EntityType: entity.Role,
		},
		entity.AccessControl: {
			Dashboard: "/main/access-control/:entitySegment?/:entityId?",
			List:      "/main/access-control/:entitySegment?/:entityId?",
			Entity:    "/main/access-control/:entitySegment?/:entityId?",
			IDParam:   "entityId",
			TypeParam: "entitySegment",
			Segments: map[string]entity.Type{
				"roles":           entity.Role,
				"auth-providers":  entity.AuthProvider,
				"permission-sets": entity.PermissionSet,
				"access-scopes":   entity.AccessScope,
			},
		},
	}
	for _, uc := range entity.WorkflowUseCases {
		m[uc] = workflowPaths()
	}
	return m
}

var defaultOrder = []entity.UseCase{
	entity.Compliance, entity.ConfigManagement, entity.VulnerabilityManagement,
	entity.Clusters, entity.Risk, entity.Violations, entity.Policies, entity.User, entity.AccessControl,
}

// ErrReservedUseCase is returned when registering over a workflow use case.
var ErrReservedUseCase = errors.New("use case is reserved")

// Registry maps use cases to their path templates. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	maps  map[entity.UseCase]compiledMap
	order []entity.UseCase
}

// NewRegistry returns a registry holding the default path maps.
func NewRegistry() *Registry {
	r := &Registry{maps: make(map[entity.UseCase]compiledMap)}
	defaults := DefaultPaths()
	for _, uc := range defaultOrder {
		cm, err := compileMap(uc, defaults[uc])
		if err != nil {
			panic(err)
		}
		r.maps[uc] = cm
		r.order = append(r.order, uc)
	}
	return r
}

// Register adds or replaces the path map of a non-workflow use case.
// Maps registered later are matched after earlier ones.
func (r *Registry) Register(uc entity.UseCase, m PathMap) error {
	cm, err := compileRoute(uc, m)
	if err != nil {
		return err
	}
	r.install(cm)
	return nil
}

func compileRoute(uc entity.UseCase, m PathMap) (compiledMap, error) {
	if uc == "" {
		return compiledMap{}, ErrNoUseCase
	}
	if uc.IsWorkflow() {
		return compiledMap{}, fmt.Errorf("%w: %s", ErrReservedUseCase, uc)
	}
	m.workflow = false
	return compileMap(uc, m)
}

// install adds or replaces every map under one lock.
func (r *Registry) install(cms ...compiledMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cm := range cms {
		if _, ok := r.maps[cm.useCase]; !ok {
			r.order = append(r.order, cm.useCase)
		}
		r.maps[cm.useCase] = cm
	}
}

// PathMap returns the templates registered for uc.
func (r *Registry) PathMap(uc entity.UseCase) (PathMap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.maps[uc]
	return cm.paths, ok
}

// UseCases lists registered use cases in match order.
func (r *Registry) UseCases() []entity.UseCase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.UseCase, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) lookup(uc entity.UseCase) (compiledMap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.maps[uc]
	return cm, ok
}

func (r *Registry) snapshot() []compiledMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]compiledMap, 0, len(r.order))
	for _, uc := range r.order {
		out = append(out, r.maps[uc])
	}
	return out
}
