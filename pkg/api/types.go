package api

import (
	"github.com/rmax-ai/wayfinder/pkg/entity"
	"github.com/rmax-ai/wayfinder/pkg/graph"
	"github.com/rmax-ai/wayfinder/pkg/urlcodec"
	"github.com/rmax-ai/wayfinder/pkg/workflow"
)

// GenerateRequest matches the POST /v1/url/generate body schema
type GenerateRequest struct {
	State workflow.State `json:"state"`
}

// GenerateResponse matches the response for POST /v1/url/generate
type GenerateResponse struct {
	URL string `json:"url"`
}

// ParseRequest matches the POST /v1/url/parse body schema
type ParseRequest struct {
	URL string `json:"url"`
}

// ParseResponse matches the response for POST /v1/url/parse. Match is nil
// when no route recognised the path.
type ParseResponse struct {
	State workflow.State  `json:"state"`
	Match *urlcodec.Match `json:"match,omitempty"`
}

// OpenSessionRequest matches the POST /v1/sessions body schema. Exactly one
// of URL and State must be set.
type OpenSessionRequest struct {
	URL   string          `json:"url,omitempty"`
	State *workflow.State `json:"state,omitempty"`
}

// RelationshipsResponse matches the response for GET /v1/relationships
type RelationshipsResponse struct {
	UseCase      entity.UseCase     `json:"use_case"`
	Type         entity.Type        `json:"type"`
	Relationship graph.Relationship `json:"relationship"`
	Types        []entity.Type      `json:"types"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
