// Package testing provides fixtures and helpers for weave tests.
package testing

import (
	"context"
	"math"
	"testing"

	"github.com/zoobzio/weave"
)

// Account is a node that may point back at itself through Manager.
type Account struct {
	ID      string
	Owner   string
	Manager *Account
}

// Trade references the account that placed it.
type Trade struct {
	Symbol  string `weave:"sym"`
	Qty     int
	Price   float64
	Account *Account
}

// Portfolio is a graph with shared and cyclic references.
type Portfolio struct {
	Name     string
	Owner    *Account
	Trades   []*Trade
	Limits   map[string]int
	Holdings weave.Map[string, int]
	History  weave.List[*Trade]
}

// Shape is implemented by Circle and Square.
type Shape interface {
	Area() float64
}

// Circle is a Shape.
type Circle struct {
	R float64
}

// Area implements Shape.
func (c Circle) Area() float64 { return math.Pi * c.R * c.R }

// Square is a Shape.
type Square struct {
	Side float64
}

// Area implements Shape.
func (s *Square) Area() float64 { return s.Side * s.Side }

// Drawing holds shapes behind an interface.
type Drawing struct {
	Main   Shape
	Shapes []Shape
}

// Grid is a two-dimensional fixed array.
type Grid struct {
	Cells [2][3]int
}

// Journal records its lifecycle hooks in Events, which is never written.
type Journal struct {
	Entries []string
	Events  []string `weave:"-"`
}

func (j *Journal) OnSerializing() { j.Events = append(j.Events, "serializing") }
func (j *Journal) OnSerialized() { j.Events = append(j.Events, "serialized") }
func (j *Journal) OnDeserializing() { j.Events = append(j.Events, "deserializing") }
func (j *Journal) OnDeserialized() { j.Events = append(j.Events, "deserialized") }

func init() {
	weave.RegisterType[Portfolio]()
	weave.RegisterType[Drawing]()
	weave.RegisterType[Circle]()
	weave.RegisterType[*Square]()
	weave.RegisterType[*weave.Vector[*Trade]]()
	weave.RegisterType[*weave.HashMap[string, int]]()
}

// SamplePortfolio returns a portfolio whose owner manages themself and
// placed every trade.
func SamplePortfolio() *Portfolio {
	owner := &Account{ID: "A-1", Owner: "Alice"}
	owner.Manager = owner

	first := &Trade{Symbol: "ACME", Qty: 10, Price: 12.5, Account: owner}
	second := &Trade{Symbol: "XYZ", Qty: -3, Price: 99, Account: owner}

	holdings := weave.NewHashMap[string, int]()
	holdings.Put("ACME", 10)
	holdings.Put("XYZ", -3)

	return &Portfolio{
		Name:     "core",
		Owner:    owner,
		Trades:   []*Trade{first, second},
		Limits:   map[string]int{"daily": 1000, "single": 250},
		Holdings: holdings,
		History:  weave.NewVector(first, second),
	}
}

// NewSerializer creates a serializer, failing tb on error.
func NewSerializer[T any](tb testing.TB, opts ...weave.Option) *weave.Serializer[T] {
	tb.Helper()
	s, err := weave.New[T](opts...)
	if err != nil {
		tb.Fatalf("New() error: %v", err)
	}
	return s
}

// RoundTrip marshals v and unmarshals the result, failing tb on error.
// It returns the restored value and the document.
func RoundTrip[T any](tb testing.TB, s *weave.Serializer[T], v T) (T, []byte) {
	tb.Helper()
	ctx := context.Background()
	data, err := s.Marshal(ctx, v)
	if err != nil {
		tb.Fatalf("Marshal() error: %v", err)
	}
	out, err := s.Unmarshal(ctx, data)
	if err != nil {
		tb.Fatalf("Unmarshal() error: %v\n%s", err, data)
	}
	return out, data
}
