package weave_test

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/weave"
	weavetest "github.com/zoobzio/weave/testing"
)

func TestSerializer_SharedAndCyclic(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Portfolio](t, weave.WithRefTracking(true))

	out, data := weavetest.RoundTrip(t, s, weavetest.SamplePortfolio())
	doc := string(data)

	if out.Owner == nil || out.Owner.Manager != out.Owner {
		t.Fatal("owner should still manage themself")
	}
	for i, tr := range out.Trades {
		if tr.Account != out.Owner {
			t.Errorf("Trades[%d].Account should be the restored owner", i)
		}
	}
	if out.History == nil || out.History.Len() != 2 {
		t.Fatalf("History = %v", out.History)
	}
	if out.History.At(0) != out.Trades[0] || out.History.At(1) != out.Trades[1] {
		t.Error("History should share the restored trades")
	}

	for _, want := range []string{`id="1"`, `ref="1"`, `id="2"`, `ref="2"`, `id="3"`, `ref="3"`} {
		if !strings.Contains(doc, want) {
			t.Errorf("document should contain %s:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, `id="4"`) {
		t.Errorf("only the owner and the trades are shared:\n%s", doc)
	}
}

func TestSerializer_DefaultShapesOmitType(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Portfolio](t, weave.WithRefTracking(true))

	out, data := weavetest.RoundTrip(t, s, weavetest.SamplePortfolio())

	if strings.Contains(string(data), "type=") {
		t.Errorf("default list and map shapes should not carry a type attribute:\n%s", data)
	}
	holdings, ok := out.Holdings.(*weave.HashMap[string, int])
	if !ok {
		t.Fatalf("Holdings = %T, want *weave.HashMap[string, int]", out.Holdings)
	}
	if v, _ := holdings.Get("XYZ"); v != -3 {
		t.Errorf("Holdings[XYZ] = %d, want -3", v)
	}
	if out.Limits["daily"] != 1000 || out.Limits["single"] != 250 {
		t.Errorf("Limits = %v", out.Limits)
	}
}

func TestSerializer_CycleWithoutTracking(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Portfolio](t)

	_, err := s.Marshal(context.Background(), weavetest.SamplePortfolio())
	if !errors.Is(err, weave.ErrMaxDepth) {
		t.Errorf("Marshal(cycle) error = %v, want ErrMaxDepth", err)
	}
}

func TestSerializer_SharedWithoutTracking(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Portfolio](t)

	owner := &weavetest.Account{ID: "A-2", Owner: "Bob"}
	in := &weavetest.Portfolio{
		Owner:  owner,
		Trades: []*weavetest.Trade{{Symbol: "ACME", Account: owner}},
	}
	out, data := weavetest.RoundTrip(t, s, in)

	if strings.Contains(string(data), "id=") {
		t.Errorf("untracked documents should carry no ids:\n%s", data)
	}
	if out.Trades[0].Account == out.Owner {
		t.Error("untracked read should produce separate copies")
	}
	if *out.Trades[0].Account != *out.Owner {
		t.Errorf("copies differ: %+v vs %+v", out.Trades[0].Account, out.Owner)
	}
}

type defaults struct {
	Tag string
	I   int
	S   string
	B   bool
	F   float64
	P   *int
	L   []int
	M   map[string]int
	T   time.Time
	D   time.Duration
}

func TestSerializer_DefaultValues(t *testing.T) {
	s := weavetest.NewSerializer[defaults](t)

	in := defaults{Tag: "zero"}
	out, data := weavetest.RoundTrip(t, s, in)
	doc := string(data)

	if !reflect.DeepEqual(out, in) {
		t.Errorf("RoundTrip(zero) = %+v", out)
	}
	for _, want := range []string{"<I></I>", "<S></S>", "<T></T>", `<P null="true"></P>`, `<L null="true"></L>`} {
		if !strings.Contains(doc, want) {
			t.Errorf("document should contain %s:\n%s", want, doc)
		}
	}
}

func TestSerializer_Values(t *testing.T) {
	s := weavetest.NewSerializer[defaults](t)

	n := 42
	in := defaults{
		I: -7,
		S: "a < b & c",
		B: true,
		F: 0.1,
		P: &n,
		L: []int{1, 0, 3},
		M: map[string]int{"b": 2, "a": 1},
		T: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		D: 90 * time.Second,
	}
	out, data := weavetest.RoundTrip(t, s, in)

	if !out.T.Equal(in.T) {
		t.Errorf("T = %v, want %v", out.T, in.T)
	}
	out.T = in.T
	if !reflect.DeepEqual(out, in) {
		t.Errorf("RoundTrip() = %+v, want %+v", out, in)
	}
	if a, b := strings.Index(string(data), `key="a"`), strings.Index(string(data), `key="b"`); a < 0 || a > b {
		t.Errorf("map entries should be written in key order:\n%s", data)
	}
}

func TestSerializer_Polymorphism(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Drawing](t)

	in := weavetest.Drawing{
		Main:   weavetest.Circle{R: 2},
		Shapes: []weavetest.Shape{&weavetest.Square{Side: 3}, weavetest.Circle{R: 1}, nil},
	}
	out, data := weavetest.RoundTrip(t, s, in)

	circle := weave.TypeName(reflect.TypeFor[weavetest.Circle]())
	if !strings.Contains(string(data), `type="`+circle+`"`) {
		t.Errorf("document should name %s:\n%s", circle, data)
	}
	if c, ok := out.Main.(weavetest.Circle); !ok || c.R != 2 {
		t.Errorf("Main = %#v, want Circle{R: 2}", out.Main)
	}
	if len(out.Shapes) != 3 {
		t.Fatalf("len(Shapes) = %d, want 3", len(out.Shapes))
	}
	if sq, ok := out.Shapes[0].(*weavetest.Square); !ok || sq.Side != 3 {
		t.Errorf("Shapes[0] = %#v, want &Square{Side: 3}", out.Shapes[0])
	}
	if out.Shapes[2] != nil {
		t.Errorf("Shapes[2] = %#v, want nil", out.Shapes[2])
	}
}

type inventory struct {
	Items weave.List[int]
}

func TestSerializer_InferableList(t *testing.T) {
	s := weavetest.NewSerializer[inventory](t)

	out, data := weavetest.RoundTrip(t, s, inventory{Items: weave.NewVector(4, 5)})
	if strings.Contains(string(data), "type=") {
		t.Errorf("Vector in a List field should not carry a type:\n%s", data)
	}
	if v, ok := out.Items.(*weave.Vector[int]); !ok || !reflect.DeepEqual(v.Items(), []int{4, 5}) {
		t.Errorf("Items = %v", out.Items)
	}
}

func TestSerializer_GridSkipped(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Grid](t)

	in := weavetest.Grid{Cells: [2][3]int{{1, 0, 0}, {0, 5, 6}}}
	out, data := weavetest.RoundTrip(t, s, in)

	if out != in {
		t.Errorf("RoundTrip() = %+v, want %+v", out, in)
	}
	doc := string(data)
	if !strings.Contains(doc, `dim="2,3"`) || !strings.Contains(doc, `skipped="3"`) {
		t.Errorf("document should carry dim and skipped:\n%s", doc)
	}
}

type blob struct {
	Data  []byte
	Fixed [4]byte
}

func TestSerializer_Bytes(t *testing.T) {
	s := weavetest.NewSerializer[blob](t)

	in := blob{Data: []byte("hello"), Fixed: [4]byte{1, 2, 3, 4}}
	out, data := weavetest.RoundTrip(t, s, in)

	if !reflect.DeepEqual(out, in) {
		t.Errorf("RoundTrip() = %+v, want %+v", out, in)
	}
	doc := string(data)
	if strings.Contains(doc, "<item") {
		t.Errorf("bytes should not be written item by item:\n%s", doc)
	}
	if !strings.Contains(doc, "aGVsbG8=") {
		t.Errorf("bytes should be base64:\n%s", doc)
	}
}

func TestSerializer_FieldNames(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Trade](t,
		weave.WithFieldName(reflect.TypeFor[weavetest.Trade](), "Qty", "quantity"),
	)

	out, data := weavetest.RoundTrip(t, s, weavetest.Trade{Symbol: "ACME", Qty: 3})
	doc := string(data)
	if !strings.Contains(doc, "<sym>ACME</sym>") || !strings.Contains(doc, "<quantity>3</quantity>") {
		t.Errorf("fields should use tag and override names:\n%s", doc)
	}
	if out.Symbol != "ACME" || out.Qty != 3 {
		t.Errorf("RoundTrip() = %+v", out)
	}
}

func TestSerializer_Hooks(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Journal](t)

	in := &weavetest.Journal{Entries: []string{"opened"}}
	out, data := weavetest.RoundTrip(t, s, in)

	if want := []string{"serializing", "serialized"}; !reflect.DeepEqual(in.Events, want) {
		t.Errorf("write events = %v, want %v", in.Events, want)
	}
	if want := []string{"deserializing", "deserialized"}; !reflect.DeepEqual(out.Events, want) {
		t.Errorf("read events = %v, want %v", out.Events, want)
	}
	if strings.Contains(string(data), "Events") {
		t.Errorf("transient field should not be written:\n%s", data)
	}
}

func TestSerializer_ReadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"missing id", `<Portfolio><Owner ref="1"></Owner></Portfolio>`, weave.ErrUnresolvedRef},
		{"forward ref", `<Portfolio><Owner ref="1"></Owner><Trades dim="1"><item><Account id="1"><ID>A-1</ID></Account></item></Trades></Portfolio>`, weave.ErrUnresolvedRef},
		{"null with id", `<Portfolio><Owner id="1" null="true"></Owner></Portfolio>`, weave.ErrNullWithID},
		{"unknown field", `<Portfolio><Bogus>1</Bogus></Portfolio>`, weave.ErrUnknownField},
		{"bad scalar", `<Portfolio><Owner><Manager null="false"><ID><x/></ID></Manager></Owner></Portfolio>`, weave.ErrMalformed},
		{"unknown type", `<Portfolio><Owner type="example.com/nope.Nope"></Owner></Portfolio>`, weave.ErrUnknownType},
		{"root name", `<Folio></Folio>`, weave.ErrRootName},
		{"not xml", `<Portfolio>`, weave.ErrMalformed},
		{"duplicate id", `<Portfolio><Trades dim="2"><item id="1"></item><item id="1"></item></Trades></Portfolio>`, weave.ErrMalformed},
	}

	s := weavetest.NewSerializer[*weavetest.Portfolio](t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Unmarshal(context.Background(), []byte(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
			var se *weave.SerializationError
			if !errors.As(err, &se) {
				t.Errorf("error should be a *SerializationError, got %T", err)
			}
		})
	}
}

func TestSerializer_DrawingErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"abstract", `<Drawing><Main><R>1</R></Main></Drawing>`, weave.ErrAbstractType},
		{"overflow", `<Drawing><Shapes dim="1"><item null="true"></item><item null="true"></item></Shapes></Drawing>`, weave.ErrArrayOverflow},
	}

	s := weavetest.NewSerializer[weavetest.Drawing](t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Unmarshal(context.Background(), []byte(tt.doc)); !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSerializer_GridOverflow(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Grid](t)

	doc := `<Grid><Cells dim="2,3"><item skipped="6">1</item></Cells></Grid>`
	if _, err := s.Unmarshal(context.Background(), []byte(doc)); !errors.Is(err, weave.ErrArrayOverflow) {
		t.Errorf("Unmarshal() error = %v, want ErrArrayOverflow", err)
	}
}

func TestSerializer_EmptyInterface(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Drawing](t)

	out, err := s.Unmarshal(context.Background(), []byte(`<Drawing><Main></Main></Drawing>`))
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if out.Main != nil {
		t.Errorf("Main = %#v, want nil", out.Main)
	}
}

func TestSerializer_RootName(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Grid](t, weave.WithRootName("board"))
	ctx := context.Background()

	data, err := s.Marshal(ctx, weavetest.Grid{})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.HasPrefix(string(data), "<board") {
		t.Errorf("document should start with <board>:\n%s", data)
	}

	renamed := []byte(strings.ReplaceAll(string(data), "board", "other"))
	if _, err := s.Unmarshal(ctx, renamed); !errors.Is(err, weave.ErrRootName) {
		t.Errorf("Unmarshal(renamed) error = %v, want ErrRootName", err)
	}
	if _, err := s.Read(ctx, bytes.NewReader(renamed)); err != nil {
		t.Errorf("Read() should not check the root name: %v", err)
	}
}

func TestSerializer_WriteRead(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Portfolio](t, weave.WithRefTracking(true), weave.WithIndent(""))
	ctx := context.Background()

	var buf bytes.Buffer
	if err := s.Write(ctx, &buf, weavetest.SamplePortfolio()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if strings.Contains(buf.String(), "\n") {
		t.Errorf("empty indent should write a single line:\n%s", buf.String())
	}

	out, err := s.Read(ctx, &buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if out.Name != "core" || out.Owner.Manager != out.Owner {
		t.Errorf("Read() = %+v", out)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestSerializer_WriteError(t *testing.T) {
	s := weavetest.NewSerializer[weavetest.Grid](t)

	sink := errors.New("disk full")
	if err := s.Write(context.Background(), failingWriter{err: sink}, weavetest.Grid{}); !errors.Is(err, sink) {
		t.Errorf("Write() error = %v, want %v", err, sink)
	}
}

func TestSerializer_MaxDepth(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Portfolio](t, weave.WithMaxDepth(2))

	_, err := s.Marshal(context.Background(), &weavetest.Portfolio{Owner: &weavetest.Account{ID: "x"}})
	if !errors.Is(err, weave.ErrMaxDepth) {
		t.Errorf("Marshal() error = %v, want ErrMaxDepth", err)
	}

	if _, err := weave.New[int](weave.WithMaxDepth(-1)); !errors.Is(err, weave.ErrMaxDepth) {
		t.Errorf("New(negative depth) error = %v, want ErrMaxDepth", err)
	}
}

func TestSerializer_ContentType(t *testing.T) {
	s := weavetest.NewSerializer[int](t)
	if s.ContentType() != "application/xml" {
		t.Errorf("ContentType() = %q", s.ContentType())
	}
	if s.RootName() != "int" {
		t.Errorf("RootName() = %q, want %q", s.RootName(), "int")
	}
}

func TestSerializer_Schema(t *testing.T) {
	s := weavetest.NewSerializer[*weavetest.Trade](t)

	meta, err := s.Schema(reflect.TypeFor[*weavetest.Trade]())
	if err != nil {
		t.Fatalf("Schema() error: %v", err)
	}
	if meta.TypeName != "Trade" {
		t.Errorf("TypeName = %q, want Trade", meta.TypeName)
	}
	if len(meta.Fields) != 4 || meta.Fields[0].Tags["weave"] != "sym" {
		t.Errorf("Fields = %+v", meta.Fields)
	}

	if _, err := s.Schema(reflect.TypeFor[int]()); !errors.Is(err, weave.ErrUnsupportedType) {
		t.Errorf("Schema(int) error = %v, want ErrUnsupportedType", err)
	}
}
