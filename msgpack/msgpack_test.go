package msgpack

import (
	"context"
	"strings"
	"testing"

	"github.com/zoobzio/weave"
)

type quote struct {
	Symbol string  `msgpack:"sym"`
	Price  float64 `msgpack:"px"`
	Note   string  `msgpack:"-"`
}

type book struct {
	Best  quote
	Other *quote
}

func TestContentType(t *testing.T) {
	c := New()
	if c.ContentType() != "application/msgpack" {
		t.Errorf("ContentType() = %q, want %q", c.ContentType(), "application/msgpack")
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	c := New()
	original := quote{Symbol: "ACME", Price: 12.5}

	data, err := c.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var restored quote
	if err := c.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if restored != original {
		t.Errorf("round-trip failed: got %+v, want %+v", restored, original)
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var v quote
	if err := New().Unmarshal([]byte("not msgpack"), &v); err == nil {
		t.Error("Unmarshal(invalid) should return error")
	}
}

func TestContract(t *testing.T) {
	c, err := Contract[quote]()
	if err != nil {
		t.Fatalf("Contract() error: %v", err)
	}
	if ext, ok := c.Table().External("Symbol"); !ok || ext != "sym" {
		t.Errorf("External(Symbol) = %q, %v", ext, ok)
	}
	if _, ok := c.Table().External("Note"); ok {
		t.Error("excluded field should not be in the contract")
	}

	s, err := weave.New[book](weave.WithOpaque(c))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	in := book{
		Best:  quote{Symbol: "ACME", Price: 12.5, Note: "local"},
		Other: &quote{Symbol: "XYZ", Price: 1},
	}

	data, err := s.Marshal(ctx, in)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if strings.Contains(string(data), "ACME") {
		t.Error("binary payload should be base64 encoded")
	}

	out, err := s.Unmarshal(ctx, data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if out.Best.Symbol != "ACME" || out.Best.Price != 12.5 {
		t.Errorf("Best = %+v", out.Best)
	}
	if out.Best.Note != "" {
		t.Errorf("Note = %q, want empty", out.Best.Note)
	}
	if out.Other == nil || out.Other.Symbol != "XYZ" || out.Other.Price != 1 {
		t.Errorf("Other = %+v", out.Other)
	}
}
