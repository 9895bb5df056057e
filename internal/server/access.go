package server

import (
	"fmt"
	"net/http"
)

const (
	AccessPublic = "PUBLIC"
	AccessUser   = "USER"
)

type AccessRule struct {
	Method string
	Path   string
	Access string
}

var endpointAccess = []AccessRule{
	{Method: http.MethodGet, Path: "/healthz", Access: AccessPublic},
	{Method: http.MethodGet, Path: "/api/routes", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/sign-up", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/verify-email", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/resend-verification", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/sign-in", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/sign-out", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/forgot-password", Access: AccessPublic},
	{Method: http.MethodPost, Path: "/api/auth/reset-password", Access: AccessPublic},
	{Method: http.MethodGet, Path: "/api/oauth/{provider}/start", Access: AccessPublic},
	{Method: http.MethodGet, Path: "/api/oauth/{provider}/callback", Access: AccessPublic},

	{Method: http.MethodGet, Path: "/api/auth/me", Access: AccessUser},
	{Method: http.MethodGet, Path: "/api/sessions", Access: AccessUser},
	{Method: http.MethodDelete, Path: "/api/sessions/{id}", Access: AccessUser},
	{Method: http.MethodPatch, Path: "/api/profile", Access: AccessUser},
	{Method: http.MethodDelete, Path: "/api/profile", Access: AccessUser},
	{Method: http.MethodGet, Path: "/api/accounts", Access: AccessUser},
	{Method: http.MethodDelete, Path: "/api/accounts/{id}", Access: AccessUser},
	{Method: http.MethodGet, Path: "/api/activity", Access: AccessUser},
}

func accessLevel(method, path string) string {
	for _, rule := range endpointAccess {
		if rule.Method == method && rule.Path == path {
			return rule.Access
		}
	}
	panic(fmt.Sprintf("missing access rule for %s %s", method, path))
}
