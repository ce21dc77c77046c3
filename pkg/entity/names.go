package entity

// URL segment tables. List names address the list view of a type, entity
// names address a single instance.
var (
	listNames = map[Type]string{
		Namespace:      "namespaces",
		Cluster:        "clusters",
		Node:           "nodes",
		Deployment:     "deployments",
		Image:          "images",
		Secret:         "secrets",
		Policy:         "policies",
		CVE:            "cves",
		ImageCVE:       "image-cves",
		NodeCVE:        "node-cves",
		ClusterCVE:     "cluster-cves",
		Component:      "components",
		NodeComponent:  "node-components",
		ImageComponent: "image-components",
		Control:        "controls",
		ServiceAccount: "serviceaccounts",
		Subject:        "subjects",
		Role:           "roles",
	}

	entityNames = map[Type]string{
		Namespace:      "namespace",
		Cluster:        "cluster",
		Node:           "node",
		Deployment:     "deployment",
		Image:          "image",
		Secret:         "secret",
		Policy:         "policy",
		CVE:            "cve",
		ImageCVE:       "image-cve",
		NodeCVE:        "node-cve",
		ClusterCVE:     "cluster-cve",
		Component:      "component",
		NodeComponent:  "node-component",
		ImageComponent: "image-component",
		Control:        "control",
		Standard:       "standard",
		ServiceAccount: "serviceaccount",
		Subject:        "subject",
		Role:           "role",
	}

	typesByListName   = invert(listNames)
	typesByEntityName = invert(entityNames)
)

func invert(m map[Type]string) map[string]Type {
	out := make(map[string]Type, len(m))
	for t, name := range m {
		out[name] = t
	}
	return out
}

// ListName returns the plural URL segment for t.
func ListName(t Type) (string, bool) {
	name, ok := listNames[t]
	return name, ok
}

// EntityName returns the singular URL segment for t.
func EntityName(t Type) (string, bool) {
	name, ok := entityNames[t]
	return name, ok
}

// TypeFromListName resolves a plural URL segment.
func TypeFromListName(name string) (Type, bool) {
	t, ok := typesByListName[name]
	return t, ok
}

// TypeFromEntityName resolves a singular URL segment.
func TypeFromEntityName(name string) (Type, bool) {
	t, ok := typesByEntityName[name]
	return t, ok
}

// TypeFromName resolves either form, preferring the list name.
func TypeFromName(name string) (t Type, isList bool, ok bool) {
	if t, ok := typesByListName[name]; ok {
		return t, true, true
	}
	if t, ok := typesByEntityName[name]; ok {
		return t, false, true
	}
	return "", false, false
}
