package identity

import (
	"net/http"
	"reflect"
	"testing"
)

func TestFromHeaderAliasEquivalence(t *testing.T) {
	// every accepted alias of user id must resolve the same identity
	for _, alias := range []string{"user_id", "user-id", "userid"} {
		h := http.Header{}
		h.Set(alias, "42")
		uc := FromHeader(h)
		if uc.UserID != 42 {
			t.Fatalf("alias %q: user id = %d, want 42", alias, uc.UserID)
		}
	}
}

func TestFromHeaderAllFields(t *testing.T) {
	h := http.Header{}
	h.Set("user_id", "7")
	h.Set("username", "alice")
	h.Set("user_key", "k-123")
	h.Set("roles", "admin, operator")
	h.Set("role_permission", "chat:read,chat:write, ,")
	h.Set("dept_id", "3")
	h.Set("data_scope", "dept")

	uc := FromHeader(h)
	if uc.UserID != 7 || uc.Username != "alice" || uc.UserKey != "k-123" {
		t.Fatalf("unexpected identity: %+v", uc)
	}
	if !reflect.DeepEqual(uc.Roles, []string{"admin", "operator"}) {
		t.Fatalf("roles = %v", uc.Roles)
	}
	// empty segments are dropped
	if !reflect.DeepEqual(uc.Permissions, []string{"chat:read", "chat:write"}) {
		t.Fatalf("permissions = %v", uc.Permissions)
	}
	if uc.DeptID != 3 || uc.DataScope != "dept" {
		t.Fatalf("dept/scope: %+v", uc)
	}
}

func TestFromHeaderNonNumericIsAbsent(t *testing.T) {
	h := http.Header{}
	h.Set("user_id", "not-a-number")
	if uc := FromHeader(h); uc.UserID != 0 {
		t.Fatalf("non-numeric user id should be absent, got %d", uc.UserID)
	}
	h.Set("user_id", "-5")
	if uc := FromHeader(h); uc.UserID != 0 {
		t.Fatalf("negative user id should be absent, got %d", uc.UserID)
	}
}

func TestFromHeaderPriorityOrder(t *testing.T) {
	h := http.Header{}
	h.Set("user_id", "1")
	h.Set("user-id", "2")
	if uc := FromHeader(h); uc.UserID != 1 {
		t.Fatalf("first variant should win, got %d", uc.UserID)
	}
}

func TestFromHeaderEmpty(t *testing.T) {
	uc := FromHeader(http.Header{})
	if uc.Authenticated() {
		t.Fatal("empty headers must not authenticate")
	}
	if uc.Roles != nil || uc.Permissions != nil {
		t.Fatalf("expected nil lists, got %+v", uc)
	}
}
