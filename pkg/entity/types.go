package entity

// Type identifies a domain concept that can appear in a navigation stack.
type Type string

const (
	Cluster    Type = "CLUSTER"
	Namespace  Type = "NAMESPACE"
	Node       Type = "NODE"
	Deployment Type = "DEPLOYMENT"
	Image      Type = "IMAGE"
	Secret     Type = "SECRET"
	Policy     Type = "POLICY"

	// CVE and COMPONENT predate the split into image, node and cluster
	// variants. They stay addressable so that old links still resolve.
	CVE            Type = "CVE"
	ImageCVE       Type = "IMAGE_CVE"
	NodeCVE        Type = "NODE_CVE"
	ClusterCVE     Type = "CLUSTER_CVE"
	Component      Type = "COMPONENT"
	NodeComponent  Type = "NODE_COMPONENT"
	ImageComponent Type = "IMAGE_COMPONENT"

	Control  Type = "CONTROL"
	Standard Type = "STANDARD"

	ServiceAccount Type = "SERVICE_ACCOUNT"
	Subject        Type = "SUBJECT"
	Role           Type = "ROLE"

	// Types reachable only through the fixed legacy routes.
	Alert         Type = "ALERT"
	AuthProvider  Type = "AUTH_PROVIDER"
	PermissionSet Type = "PERMISSION_SET"
	AccessScope   Type = "ACCESS_SCOPE"
)

// AllTypes lists every known entity type.
var AllTypes = []Type{
	Cluster, Namespace, Node, Deployment, Image, Secret, Policy,
	CVE, ImageCVE, NodeCVE, ClusterCVE,
	Component, NodeComponent, ImageComponent,
	Control, Standard,
	ServiceAccount, Subject, Role,
	Alert, AuthProvider, PermissionSet, AccessScope,
}

var knownTypes = func() map[Type]struct{} {
	m := make(map[Type]struct{}, len(AllTypes))
	for _, t := range AllTypes {
		m[t] = struct{}{}
	}
	return m
}()

// Valid reports whether t is a known entity type.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// UseCase names an application area. It selects the relationship graph and
// the URL path templates used for a navigation state.
type UseCase string

const (
	Compliance              UseCase = "compliance"
	ConfigManagement        UseCase = "configmanagement"
	VulnerabilityManagement UseCase = "vulnerability-management"

	Clusters      UseCase = "clusters"
	Risk          UseCase = "risk"
	Violations    UseCase = "violations"
	Policies      UseCase = "policies"
	User          UseCase = "user"
	AccessControl UseCase = "access-control"
)

// WorkflowUseCases are the use cases that navigate with the generic
// dashboard/list/entity path templates.
var WorkflowUseCases = []UseCase{Compliance, ConfigManagement, VulnerabilityManagement}

// IsWorkflow reports whether uc uses the generic workflow templates.
func (uc UseCase) IsWorkflow() bool {
	for _, w := range WorkflowUseCases {
		if w == uc {
			return true
		}
	}
	return false
}
