package identity

import (
	"context"
	"sync"
	"testing"
)

func TestContextCarriage(t *testing.T) {
	ctx := WithContext(context.Background(), UserContext{UserID: 9, Username: "bob"})
	if got := UserIDFromContext(ctx); got != 9 {
		t.Fatalf("user id = %d", got)
	}
	if got := UsernameFromContext(ctx); got != "bob" {
		t.Fatalf("username = %q", got)
	}
}

func TestContextDefaultsWhenUnset(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != 0 {
		t.Fatal("unset user id must default to 0")
	}
	if UsernameFromContext(ctx) != "" {
		t.Fatal("unset username must default to empty")
	}
	if RolesFromContext(ctx) != nil {
		t.Fatal("unset roles must default to nil")
	}
	if UserIDFromContext(nil) != 0 {
		t.Fatal("nil context must not panic and must default to 0")
	}
}

// Concurrent requests each carry their own identity; one goroutine must never
// observe another's context.
func TestContextIsolation(t *testing.T) {
	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			ctx := WithContext(context.Background(), UserContext{UserID: id})
			if got := UserIDFromContext(ctx); got != id {
				t.Errorf("goroutine %d saw user id %d", id, got)
			}
		}(i)
	}
	wg.Wait()
}
