package mw

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Doc carries the OpenAPI metadata for one operation. Zero fields are left
// at huma's defaults.
type Doc struct {
	ID          string
	Tag         string
	Summary     string
	Description string
	Status      int   // success status, 200 when zero
	MaxBody     int64 // request body limit, huma's 1 MiB when zero
}

func (d Doc) apply(op *huma.Operation) {
	op.OperationID = d.ID
	if d.Tag != "" {
		op.Tags = []string{d.Tag}
	}
	op.Summary = d.Summary
	op.Description = d.Description
	if d.Status != 0 {
		op.DefaultStatus = d.Status
	}
	if d.MaxBody != 0 {
		op.MaxBodyBytes = d.MaxBody
	}
}

// PublicGet registers a GET that never asks for the access token.
func PublicGet[I, O any](api huma.API, path string, h func(context.Context, *I) (*O, error), doc Doc) {
	op := huma.Operation{Method: http.MethodGet, Path: path}
	doc.apply(&op)
	huma.Register(api, op, h)
}

// ProtectedPost registers a POST gated by the access token, if one is set.
func ProtectedPost[I, O any](api huma.API, path string, h func(context.Context, *I) (*O, error), doc Doc) {
	op := huma.Operation{
		Method:   http.MethodPost,
		Path:     path,
		Security: RequireToken(),
	}
	doc.apply(&op)
	huma.Register(api, op, h)
}

// HiddenGet registers a GET left out of the OpenAPI document.
func HiddenGet[I, O any](api huma.API, path string, h func(context.Context, *I) (*O, error)) {
	huma.Register(api, huma.Operation{Method: http.MethodGet, Path: path, Hidden: true}, h)
}

// RequireToken is the security requirement for token-gated operations.
func RequireToken() []map[string][]string {
	return []map[string][]string{{SecurityScheme: {}}}
}
