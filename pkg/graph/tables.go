package graph

import (
	e "github.com/rmax-ai/wayfinder/pkg/entity"
)

// configurationTable drives configuration management and compliance.
var configurationTable = Table{
	e.Cluster: {
		Children:        []e.Type{e.Node, e.Namespace, e.Role},
		Matches:         []e.Type{e.Control},
		ExtendedMatches: []e.Type{e.Policy},
	},
	e.Node: {
		Parents: []e.Type{e.Cluster},
		Matches: []e.Type{e.Control},
	},
	e.Namespace: {
		Children:        []e.Type{e.Deployment, e.ServiceAccount, e.Secret, e.Role},
		Parents:         []e.Type{e.Cluster},
		ExtendedMatches: []e.Type{e.Policy},
	},
	e.Deployment: {
		Children: []e.Type{e.Image},
		Parents:  []e.Type{e.Namespace, e.Cluster},
		Matches:  []e.Type{e.ServiceAccount, e.Secret, e.Policy, e.Control},
	},
	e.Image: {
		Parents: []e.Type{e.Deployment},
	},
	e.Secret: {
		Parents: []e.Type{e.Namespace},
		Matches: []e.Type{e.Deployment},
	},
	e.Policy: {
		Matches:         []e.Type{e.Deployment},
		ExtendedMatches: []e.Type{e.Namespace, e.Cluster},
	},
	e.Control: {
		Parents: []e.Type{e.Standard},
		Matches: []e.Type{e.Node, e.Deployment, e.Cluster},
	},
	e.Standard: {
		Children: []e.Type{e.Control},
		Matches:  []e.Type{e.Cluster, e.Namespace, e.Node, e.Deployment},
	},
	e.ServiceAccount: {
		Parents: []e.Type{e.Namespace},
		Matches: []e.Type{e.Deployment, e.Role},
	},
	e.Role: {
		Parents: []e.Type{e.Namespace, e.Cluster},
		Matches: []e.Type{e.ServiceAccount, e.Subject},
	},
	e.Subject: {
		Matches: []e.Type{e.Role},
	},
}

// vulnerabilityTable drives vulnerability management. COMPONENT and CVE are
// the pre-postgres types; they link images and nodes through shared
// components, which is why CONTAINS needs its NODE/IMAGE carve-out.
var vulnerabilityTable = Table{
	e.Cluster: {
		Children:        []e.Type{e.Namespace, e.Node, e.ClusterCVE},
		ExtendedMatches: []e.Type{e.Policy},
	},
	e.Namespace: {
		Children:        []e.Type{e.Deployment},
		Parents:         []e.Type{e.Cluster},
		ExtendedMatches: []e.Type{e.Policy},
	},
	e.Deployment: {
		Children: []e.Type{e.Image},
		Parents:  []e.Type{e.Namespace, e.Cluster},
		Matches:  []e.Type{e.Policy},
	},
	e.Image: {
		Children: []e.Type{e.ImageComponent, e.Component},
		Parents:  []e.Type{e.Deployment},
	},
	e.ImageComponent: {
		Children:        []e.Type{e.ImageCVE},
		Matches:         []e.Type{e.Image},
		ExtendedMatches: []e.Type{e.Deployment},
	},
	e.ImageCVE: {
		Matches:         []e.Type{e.ImageComponent},
		ExtendedMatches: []e.Type{e.Image, e.Deployment},
	},
	e.Node: {
		Children: []e.Type{e.NodeComponent, e.Component},
		Parents:  []e.Type{e.Cluster},
	},
	e.NodeComponent: {
		Children: []e.Type{e.NodeCVE},
		Matches:  []e.Type{e.Node},
	},
	e.NodeCVE: {
		Matches:         []e.Type{e.NodeComponent},
		ExtendedMatches: []e.Type{e.Node},
	},
	e.ClusterCVE: {
		Matches: []e.Type{e.Cluster},
	},
	e.Component: {
		Children:        []e.Type{e.CVE},
		Matches:         []e.Type{e.Image, e.Node},
		ExtendedMatches: []e.Type{e.Deployment},
	},
	e.CVE: {
		Matches:         []e.Type{e.Component},
		ExtendedMatches: []e.Type{e.Image, e.Deployment, e.Node},
	},
	e.Policy: {
		Matches:         []e.Type{e.Deployment},
		ExtendedMatches: []e.Type{e.Namespace, e.Cluster},
	},
}

var (
	// Configuration is the graph shared by configuration management and
	// compliance.
	Configuration = MustBuild("configuration", configurationTable)

	// Vulnerability is the vulnerability management graph.
	Vulnerability = MustBuild("vulnerability", vulnerabilityTable)
)

// ForUseCase returns the relationship graph of uc. Legacy use cases have none.
func ForUseCase(uc e.UseCase) (*Graph, bool) {
	switch uc {
	case e.ConfigManagement, e.Compliance:
		return Configuration, true
	case e.VulnerabilityManagement:
		return Vulnerability, true
	}
	return nil, false
}
