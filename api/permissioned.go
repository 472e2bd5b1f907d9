package api

import (
	"github.com/filecoin-project/go-jsonrpc/auth"
)

const (
	PermRead  auth.Permission = "read" // default
	PermWrite auth.Permission = "write"
	PermAdmin auth.Permission = "admin"
)

var AllPermissions = []auth.Permission{PermRead, PermWrite, PermAdmin}
var DefaultPerms = []auth.Permission{PermRead}

// PermissionedSvdbAPI wraps an Svdb implementation with the permission
// checks declared on the proxy struct tags.
func PermissionedSvdbAPI(a Svdb) Svdb {
	var out SvdbStruct
	auth.PermissionedProxy(AllPermissions, DefaultPerms, a, &out.Internal)
	return &out
}
