package weave

import (
	"reflect"
	"testing"
	"time"
)

type namedNode struct {
	Next *namedNode
}

type pairOf[K comparable, V any] struct {
	Key K
	Val V
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeFor[int](), "int"},
		{reflect.TypeFor[string](), "string"},
		{reflect.TypeFor[any](), "any"},
		{reflect.TypeFor[error](), "error"},
		{reflect.TypeFor[time.Time](), "time.Time"},
		{reflect.TypeFor[*time.Time](), "*time.Time"},
		{reflect.TypeFor[[]int](), "[]int"},
		{reflect.TypeFor[[2][3]int](), "[2][3]int"},
		{reflect.TypeFor[map[string]int](), "map[string]int"},
		{reflect.TypeFor[func(int, string) error](), "func(int,string) error"},
		{reflect.TypeFor[func() (int, error)](), "func() (int,error)"},
		{reflect.TypeFor[func(...int)](), "func(...int)"},
		{reflect.TypeFor[namedNode](), "github.com/zoobzio/weave.namedNode, weave"},
		{reflect.TypeFor[*namedNode](), "*[github.com/zoobzio/weave.namedNode, weave]"},
		{reflect.TypeFor[map[string]*namedNode](), "map[string]*[github.com/zoobzio/weave.namedNode, weave]"},
		{reflect.TypeFor[Vector[int]](), "github.com/zoobzio/weave.Vector[[int]], weave"},
		{
			reflect.TypeFor[pairOf[string, *namedNode]](),
			"github.com/zoobzio/weave.pairOf[[string],[*[github.com/zoobzio/weave.namedNode, weave]]], weave",
		},
		{reflect.TypeFor[<-chan int](), "<-chan int"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := TypeName(tt.typ); got != tt.want {
				t.Errorf("TypeName(%v) = %q, want %q", tt.typ, got, tt.want)
			}
		})
	}
}

func TestTypeName_Nil(t *testing.T) {
	if got := TypeName(nil); got != "" {
		t.Errorf("TypeName(nil) = %q, want empty", got)
	}
}

func TestResolveTypeName(t *testing.T) {
	RegisterType[pairOf[string, *namedNode]]()
	RegisterType[time.Time]()

	tests := []reflect.Type{
		reflect.TypeFor[int](),
		reflect.TypeFor[time.Time](),
		reflect.TypeFor[[]*time.Time](),
		reflect.TypeFor[[4]byte](),
		reflect.TypeFor[map[int][]string](),
		reflect.TypeFor[func(int, ...string) (bool, error)](),
		reflect.TypeFor[namedNode](),
		reflect.TypeFor[*namedNode](),
		reflect.TypeFor[[]map[string]*namedNode](),
		reflect.TypeFor[pairOf[string, *namedNode]](),
		reflect.TypeFor[func(*namedNode) any](),
	}

	for _, want := range tests {
		name := TypeName(want)
		t.Run(name, func(t *testing.T) {
			got, ok := ResolveTypeName(name)
			if !ok {
				t.Fatalf("ResolveTypeName(%q) failed", name)
			}
			if got != want {
				t.Errorf("ResolveTypeName(%q) = %v, want %v", name, got, want)
			}
		})
	}
}

func TestResolveTypeName_Unqualified(t *testing.T) {
	RegisterType[namedNode]()

	got, ok := ResolveTypeName("github.com/zoobzio/weave.namedNode")
	if !ok || got != reflect.TypeFor[namedNode]() {
		t.Errorf("full name without module should resolve, got %v, %v", got, ok)
	}
	got, ok = ResolveTypeName("github.com/zoobzio/weave.namedNode, weave@v9.9.9")
	if !ok || got != reflect.TypeFor[namedNode]() {
		t.Errorf("another module version should resolve by full name, got %v, %v", got, ok)
	}
}

func TestResolveTypeName_Unknown(t *testing.T) {
	for _, name := range []string{
		"",
		"example.com/p.Missing",
		"[]example.com/p.Missing",
		"map[[]int]string",
		"func(int",
		"*[github.com/zoobzio/weave.namedNode, weave",
		"[-1]int",
		"[4000000000000]int64",
		"[][9223372036854775807]string",
	} {
		if _, ok := ResolveTypeName(name); ok {
			t.Errorf("ResolveTypeName(%q) should fail", name)
		}
	}
}

func TestSplitQualifier(t *testing.T) {
	tests := []struct {
		in, base, module string
		ok               bool
	}{
		{"int", "int", "", false},
		{"example.com/p.T, example.com/p@v1.0.0", "example.com/p.T", "example.com/p@v1.0.0", true},
		{"example.com/p.P[[a.A, m],[int]], m", "example.com/p.P[[a.A, m],[int]]", "m", true},
		{"func(int,string) error", "func(int,string) error", "", false},
	}

	for _, tt := range tests {
		base, module, ok := splitQualifier(tt.in)
		if base != tt.base || module != tt.module || ok != tt.ok {
			t.Errorf("splitQualifier(%q) = %q, %q, %v", tt.in, base, module, ok)
		}
	}
}

func TestIsStdlib(t *testing.T) {
	tests := map[string]bool{
		"time":                     true,
		"encoding/json":            true,
		"github.com/zoobzio/weave": false,
		"golang.org/x/crypto":      false,
	}
	for path, want := range tests {
		if got := isStdlib(path); got != want {
			t.Errorf("isStdlib(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCanonicalGoText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"int", "int"},
		{"*time.Time", "*time.Time"},
		{"[]github.com/zoobzio/weave.namedNode", "[][github.com/zoobzio/weave.namedNode, weave]"},
		{"map[string]github.com/zoobzio/weave.namedNode", "map[string][github.com/zoobzio/weave.namedNode, weave]"},
		{"[3]int", "[3]int"},
	}

	for _, tt := range tests {
		if got := canonicalGoText(tt.in); got != tt.want {
			t.Errorf("canonicalGoText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
