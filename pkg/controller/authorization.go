package controller

import "github.com/cuemby/burrow/pkg/report"

// Permission names an operation a principal performs on an object
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	// PermissionProvide allows reusing the allocation of a request
	PermissionProvide Permission = "provide-reservation-request"
	// PermissionManageResources allows changing resource definitions
	PermissionManageResources Permission = "manage-resources"
)

// Authorizer decides whether principal may act on objectID. The
// allocation engine itself never consults it.
type Authorizer interface {
	HasPermission(principal, objectID string, permission Permission) bool
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(principal, objectID string, permission Permission) bool

// HasPermission implements Authorizer
func (f AuthorizerFunc) HasPermission(principal, objectID string, permission Permission) bool {
	return f(principal, objectID, permission)
}

// AllowAll grants every permission
type AllowAll struct{}

// HasPermission implements Authorizer
func (AllowAll) HasPermission(string, string, Permission) bool {
	return true
}

func (c *Controller) authorize(principal, objectID string, permission Permission) error {
	if c.authorizer.HasPermission(principal, objectID, permission) {
		return nil
	}
	return report.Wrap(report.New(report.CodeNotAuthorized, "%s is not allowed to %s %s", principal, permission, objectID).
		WithParam("principal", principal).
		WithParam("permission", string(permission)))
}
