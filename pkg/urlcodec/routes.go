package urlcodec

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/wayfinder/pkg/entity"
)

// RouteFile is the on-disk form of extra path maps.
//
//	routes:
//	  - use_case: inventory
//	    entity: /main/inventory/:nodeId?
//	    list: /main/inventory/:nodeId?
//	    id_param: nodeId
//	    entity_type: NODE
type RouteFile struct {
	Routes []Route `yaml:"routes"`
}

// Route binds a path map to a use case.
type Route struct {
	UseCase entity.UseCase `yaml:"use_case"`
	PathMap `yaml:",inline"`
}

// DecodeRoutes reads a route file.
func DecodeRoutes(r io.Reader) (RouteFile, error) {
	var rf RouteFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		if err == io.EOF {
			return RouteFile{}, nil
		}
		return RouteFile{}, fmt.Errorf("failed to decode routes: %w", err)
	}
	return rf, nil
}

// LoadRoutes registers every route in the file at path. Either all routes
// are installed or, when any of them is invalid, none is.
func (r *Registry) LoadRoutes(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open routes: %w", err)
	}
	defer f.Close()

	rf, err := DecodeRoutes(f)
	if err != nil {
		return 0, err
	}
	cms := make([]compiledMap, 0, len(rf.Routes))
	for i, route := range rf.Routes {
		cm, err := compileRoute(route.UseCase, route.PathMap)
		if err != nil {
			return 0, fmt.Errorf("route %d: %w", i, err)
		}
		cms = append(cms, cm)
	}
	r.install(cms...)
	return len(cms), nil
}
