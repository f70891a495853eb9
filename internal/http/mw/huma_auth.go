package mw

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// HumaAccessToken enforces the shared ACCESS_TOKEN on operations that
// declare SecurityScheme. Public operations pass through.
func HumaAccessToken(api huma.API, token string) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if token == "" || !operationRequiresAuth(ctx.Operation()) {
			next(ctx)
			return
		}
		if msg := checkAccessToken(token, ctx.Header("Authorization")); msg != "" {
			ctx.SetHeader("WWW-Authenticate", `Bearer realm="pagemark"`)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, msg)
			return
		}
		next(ctx)
	}
}

func operationRequiresAuth(op *huma.Operation) bool {
	if op == nil {
		return false
	}
	for _, req := range op.Security {
		if _, ok := req[SecurityScheme]; ok {
			return true
		}
	}
	return false
}
