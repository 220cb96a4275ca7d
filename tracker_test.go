package weave

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func TestIdentityOf(t *testing.T) {
	x := 1
	var nilPtr *int
	var empty struct{}
	s := []int{1, 2, 3}
	m := map[string]int{}

	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"pointer", &x, true},
		{"nil pointer", nilPtr, false},
		{"zero-size pointee", &empty, false},
		{"map", m, true},
		{"nil map", map[string]int(nil), false},
		{"slice", s, true},
		{"empty slice", []int{}, false},
		{"int", 5, false},
		{"struct", struct{ A int }{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := identityOf(reflect.ValueOf(tt.v)); ok != tt.want {
				t.Errorf("identityOf() tracked = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestIdentityOf_Slices(t *testing.T) {
	s := []int{1, 2, 3, 4}
	a, _ := identityOf(reflect.ValueOf(s))
	b, _ := identityOf(reflect.ValueOf(s[:4]))
	c, _ := identityOf(reflect.ValueOf(s[:2]))
	d, _ := identityOf(reflect.ValueOf(s[1:]))

	if a != b {
		t.Error("the same slice header should share an identity")
	}
	if a == c || a == d {
		t.Error("reslices should be distinct")
	}
}

func TestRefTracker_Assign(t *testing.T) {
	a, b, c := new(int), new(int), new(int)
	ids := make([]identity, 3)
	for i, p := range []*int{a, b, c} {
		ids[i], _ = identityOf(reflect.ValueOf(p))
	}

	tr := newWriteTracker()
	// Discovery order a, b, c. Only b and c are seen twice.
	for _, i := range []int{0, 1, 2, 2, 1} {
		tr.visit(ids[i])
	}
	tr.assign()

	if tr.shared() != 2 {
		t.Fatalf("shared() = %d, want 2", tr.shared())
	}
	if _, emitted := tr.claim(reflect.ValueOf(a)); emitted {
		t.Error("a is never shared")
	}
	if id, emitted := tr.claim(reflect.ValueOf(b)); id != "1" || emitted {
		t.Errorf("claim(b) = %q, %v, want 1, false", id, emitted)
	}
	if id, emitted := tr.claim(reflect.ValueOf(c)); id != "2" || emitted {
		t.Errorf("claim(c) = %q, %v, want 2, false", id, emitted)
	}
	if id, emitted := tr.claim(reflect.ValueOf(b)); id != "1" || !emitted {
		t.Errorf("second claim(b) = %q, %v, want 1, true", id, emitted)
	}
}

type ring struct {
	Name string
	Next *ring
}

type sharing struct {
	Left   []int
	Right  []int
	Counts map[string]int
	Alias  map[string]int
}

func TestTracking_SharedSlicesAndMaps(t *testing.T) {
	s, err := New[sharing](WithRefTracking(true), WithIndent(""))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	nums := []int{1, 2}
	counts := map[string]int{"a": 1}
	data, err := s.Marshal(ctx, sharing{Left: nums, Right: nums, Counts: counts, Alias: counts})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	doc := string(data)
	for _, want := range []string{`<Left id="1" dim="2">`, `<Right ref="1"></Right>`, `<Counts id="2">`, `<Alias ref="2"></Alias>`} {
		if !strings.Contains(doc, want) {
			t.Errorf("document lacks %s:\n%s", want, doc)
		}
	}

	out, err := s.Unmarshal(ctx, data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	out.Left[0] = 9
	if out.Right[0] != 9 {
		t.Error("shared slice should be rebuilt once")
	}
	out.Counts["b"] = 2
	if out.Alias["b"] != 2 {
		t.Error("shared map should be rebuilt once")
	}
}

func TestTracking_Ring(t *testing.T) {
	s, err := New[*ring](WithRefTracking(true))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	a := &ring{Name: "a"}
	b := &ring{Name: "b", Next: a}
	a.Next = b

	data, err := s.Marshal(ctx, a)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := s.Unmarshal(ctx, data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if out.Name != "a" || out.Next.Name != "b" || out.Next.Next != out {
		t.Errorf("ring not restored:\n%s", data)
	}
}

type toolkit struct {
	Add   func(int) int
	Again func(int) int
	Name  func() string
}

func TestTracking_WrappedValues(t *testing.T) {
	target := &adder{N: 4}
	add, err := Bind[func(int) int](target, "Add")
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	name, err := Bind[func() string](target, "Name")
	if err != nil {
		t.Fatalf("Bind() error: %v", err)
	}

	e := newEncoder(&engine{
		known:       newKnownTypes(),
		schemas:     newSchemaCache(make(fieldNames)),
		opaques:     newOpaqueRegistry(),
		collections: newCollectionRegistry(),
		track:       true,
	})
	e.opaques.addWrapper(callableWrapper{})
	in := toolkit{Add: add, Again: add, Name: name}
	root, err := e.encode("toolkit", reflect.TypeFor[toolkit](), reflect.ValueOf(in))
	if err != nil {
		t.Fatalf("encode() error: %v", err)
	}

	if len(e.refs.pinned) != 3 {
		t.Errorf("pinned = %d stand-ins, want 3", len(e.refs.pinned))
	}
	// Only the shared receiver gets an id; descriptors and their
	// parameter lists are fresh on every wrap.
	if e.refs.shared() != 1 {
		t.Errorf("shared() = %d, want 1", e.refs.shared())
	}
	ids := 0
	var count func(*Node)
	count = func(n *Node) {
		if _, ok := n.Attr(attrID); ok {
			ids++
		}
		for _, c := range n.Children {
			count(c)
		}
	}
	count(root)
	if ids != 1 {
		t.Errorf("document has %d ids, want 1", ids)
	}
}
