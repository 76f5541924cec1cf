package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/sentinelai/sentinel/internal/domain"
)

const routedSource = `
from fastapi import FastAPI, Depends

app = FastAPI()

def get_current_user():
    return "user"

@app.get('/users/me')
def read_current_user(current_user: str = Depends(get_current_user)):
    return {"user": current_user}

@app.post("/items")
async def create_item(item: dict = Depends(get_current_user)):
    return item
`

func TestEndpoints(t *testing.T) {
	p := New("")
	eps, err := p.Endpoints(context.Background(), []byte(routedSource))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(eps))
	}

	if eps[0].Method != "GET" || eps[0].Path != "/users/me" {
		t.Errorf("first endpoint = %s %s", eps[0].Method, eps[0].Path)
	}
	if eps[0].FunctionName != "read_current_user" {
		t.Errorf("unexpected function name %q", eps[0].FunctionName)
	}
	if len(eps[0].Guards) != 1 || eps[0].Guards[0] != "get_current_user" {
		t.Errorf("expected guard get_current_user, got %v", eps[0].Guards)
	}
	if !strings.Contains(eps[0].Code, "@app.get") {
		t.Errorf("endpoint source should include decorators: %q", eps[0].Code)
	}

	if eps[1].Method != "POST" || eps[1].Path != "/items" {
		t.Errorf("second endpoint = %s %s", eps[1].Method, eps[1].Path)
	}
	if len(eps[1].Guards) != 1 || eps[1].Guards[0] != "get_current_user" {
		t.Errorf("expected guard on async endpoint, got %v", eps[1].Guards)
	}
}

func TestEndpointsIgnoresNonRouteDecorators(t *testing.T) {
	src := `
@cached
def helper(a, b):
    x = a + b
    return x

@router.unknown('/nope')
def other():
    pass
`
	p := New("")
	eps, err := p.Endpoints(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 0 {
		t.Errorf("expected no endpoints, got %d", len(eps))
	}
}

func TestEndpointsRequiresLiteralPath(t *testing.T) {
	src := `
@router.get(prefix + '/users')
def list_users():
    return []
`
	p := New("")
	eps, err := p.Endpoints(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eps) != 0 {
		t.Errorf("non-literal path should not produce an endpoint, got %d", len(eps))
	}
}

func TestEndpointsDeterministic(t *testing.T) {
	p := New("")
	first, err := p.Endpoints(context.Background(), []byte(routedSource))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := p.Endpoints(context.Background(), []byte(routedSource))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("endpoint count changed: %d vs %d", len(again), len(first))
		}
		for j := range again {
			if again[j].Method != first[j].Method || again[j].Path != first[j].Path {
				t.Errorf("endpoint %d changed: %s %s vs %s %s",
					j, again[j].Method, again[j].Path, first[j].Method, first[j].Path)
			}
		}
	}
}

func TestFunctions(t *testing.T) {
	src := `
def tiny():
    pass

def update_user(db, user_id, payload):
    user = db.query(User).get(user_id)
    user.name = payload.name
    db.commit()
    return user

class Service:
    def delete_account(self, user):
        self.db.delete(user)
        self.db.commit()
        return True
`
	p := New("")
	fns, err := p.Functions(context.Background(), []byte(src), "app/service.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := make(map[string]domain.CodeItem)
	for _, fn := range fns {
		names[fn.FunctionName] = fn
	}
	if _, ok := names["tiny"]; ok {
		t.Error("two-line function should be skipped")
	}
	fn, ok := names["update_user"]
	if !ok {
		t.Fatal("update_user not extracted")
	}
	if fn.Method != domain.MethodFunction {
		t.Errorf("expected FUNCTION method, got %s", fn.Method)
	}
	if fn.FilePath != "app/service.py" {
		t.Errorf("unexpected file path %s", fn.FilePath)
	}
	if len(fn.Arguments) != 3 {
		t.Errorf("expected 3 arguments, got %v", fn.Arguments)
	}
	if _, ok := names["delete_account"]; !ok {
		t.Error("method inside class not extracted")
	}
}

func TestFunctionsDedup(t *testing.T) {
	src := `
def handler(a):
    x = a * 2
    y = x + 1
    return y

def handler(a):
    x = a * 2
    y = x + 1
    return y
`
	p := New("")
	fns, err := p.Functions(context.Background(), []byte(src), "dup.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fns) != 1 {
		t.Errorf("identical definitions should dedup to 1, got %d", len(fns))
	}
}

func TestShouldSkip(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"app/api/users.py", false},
		{"venv/lib/thing.py", true},
		{"app/tests/test_users.py", true},
		{"app/migrations/0001_init.py", true},
		{"setup.py", true},
		{"app/conftest.py", true},
		{"node_modules/pkg/x.py", true},
		{"src/testing/helpers.py", false}, // "testing" is not in the skip set
	}
	for _, c := range cases {
		if got := ShouldSkip(c.path); got != c.want {
			t.Errorf("ShouldSkip(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestRelevant(t *testing.T) {
	p := New("")

	t.Run("endpoints always relevant", func(t *testing.T) {
		if !p.Relevant(domain.CodeItem{IsEndpoint: true, Code: "x"}) {
			t.Error("endpoint should be relevant")
		}
	})

	t.Run("short functions are not", func(t *testing.T) {
		item := domain.CodeItem{Code: "def f():\n    return user.id"}
		if p.Relevant(item) {
			t.Error("function under five lines should not be relevant")
		}
	})

	t.Run("long function without keywords is not", func(t *testing.T) {
		item := domain.CodeItem{Code: "def f(a, b):\n    x = a\n    y = b\n    z = x + y\n    return z"}
		if p.Relevant(item) {
			t.Error("no auth keyword, should not be relevant")
		}
	})

	t.Run("keyword match qualifies", func(t *testing.T) {
		item := domain.CodeItem{Code: "def f(db, uid):\n    row = db.query(T)\n    row.x = 1\n    db.commit()\n    return row"}
		if !p.Relevant(item) {
			t.Error("db.query should qualify")
		}
	})

	t.Run("marker name qualifies", func(t *testing.T) {
		item := domain.CodeItem{Code: "def f(x):\n    a = 1\n    b = 2\n    c = Depends(x)\n    return c"}
		if !p.Relevant(item) {
			t.Error("dependency marker should qualify")
		}
	})
}
