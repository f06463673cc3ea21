package identity

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/githaohao/xzxz-lm-chat/internal/fieldcase"
)

// Accepted header-name variants per logical field, in priority order. The
// upstream gateway has shipped these under several naming conventions over
// time, so the extractor tolerates all of them.
var (
	userIDHeaders      = []string{"user_id", "user-id", "userid"}
	usernameHeaders    = []string{"username", "user_name", "user-name"}
	userKeyHeaders     = []string{"user_key", "user-key", "userkey"}
	permissionHeaders  = []string{"role_permission", "role-permission", "rolepermission"}
	rolesHeaders       = []string{"roles", "role"}
	deptIDHeaders      = []string{"dept_id", "dept-id", "deptid"}
	dataScopeHeaders   = []string{"data_scope", "data-scope", "datascope"}
)

// FromHeader builds a UserContext from gateway-injected request headers.
// Values are trusted as-is: no signature is checked here, which is only safe
// when the network guarantees these headers cannot be set by outside callers.
func FromHeader(h http.Header) UserContext {
	return UserContext{
		UserID:      headerInt(h, userIDHeaders),
		Username:    headerString(h, usernameHeaders),
		UserKey:     headerString(h, userKeyHeaders),
		Roles:       headerList(h, rolesHeaders),
		Permissions: headerList(h, permissionHeaders),
		DeptID:      headerInt(h, deptIDHeaders),
		DataScope:   headerString(h, dataScopeHeaders),
	}
}

// headerString returns the first non-empty value among the variants, falling
// back to the camelCase form of each snake_case variant.
func headerString(h http.Header, variants []string) string {
	for _, name := range variants {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	for _, name := range variants {
		if camel := fieldcase.ToCamel(name); camel != name {
			if v := strings.TrimSpace(h.Get(camel)); v != "" {
				return v
			}
		}
	}
	return ""
}

// headerInt parses the matched value as int64. Non-numeric input is treated
// as absent (0) rather than an error.
func headerInt(h http.Header, variants []string) int64 {
	v := headerString(h, variants)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// headerList splits a comma-separated value, trimming entries and dropping
// empty segments.
func headerList(h http.Header, variants []string) []string {
	v := headerString(h, variants)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
