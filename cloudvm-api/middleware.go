package cloudvm_api

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jacksonzamorano/cloudvm"
)

// Paths served without a token.
var PublicPaths = map[string]bool{
	"/health":            true,
	"/metrics":           true,
	"/api/auth/login":    true,
	"/api/auth/register": true,
}

// RequestIdMiddleware keeps an incoming X-Request-ID or assigns a new one, and echoes it.
func (api *Api) RequestIdMiddleware(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) bool {
	id, ok := req.GetHeader("X-Request-ID")
	if !ok || id == "" {
		id = uuid.NewString()
	}
	req.RequestId = id
	res.SetHeader("X-Request-ID", id)
	return true
}

// CorsMiddleware sets the CORS headers and answers preflight requests itself.
func (api *Api) CorsMiddleware(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) bool {
	res.ApplyCors(api.Cors.Origin, api.Cors.Headers, api.Cors.Methods)
	res.SetHeader("Access-Control-Allow-Credentials", "true")
	if req.Method == cloudvm.Options {
		res.SetStatus(cloudvm.StatusOK)
		res.Json("{}")
		return false
	}
	return true
}

// AuthMiddleware requires a valid bearer token outside PublicPaths and sets UserId.
func (api *Api) AuthMiddleware(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) bool {
	if PublicPaths[req.Path] {
		return true
	}
	header, ok := req.GetHeader("Authorization")
	if !ok {
		res.SetError(cloudvm.StatusUnauthorized, "No authorization token provided")
		return false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		res.SetError(cloudvm.StatusUnauthorized, "Invalid authorization format")
		return false
	}
	payload, err := api.Issuer.Verify(token)
	if err != nil {
		res.SetError(cloudvm.StatusUnauthorized, "Invalid or expired token")
		return false
	}
	req.UserId = payload.UserId
	return true
}
