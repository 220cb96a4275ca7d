package weave

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestCursor(t *testing.T) {
	c := newCursor([]int{2, 3})
	var got [][]int
	for ok := c.valid(); ok; ok = c.next() {
		got = append(got, append([]int(nil), c.idx...))
	}
	want := [][]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("positions = %v, want %v", got, want)
	}
	if c.next() {
		t.Error("next() past the end should report false")
	}
}

func TestCursor_Skip(t *testing.T) {
	c := newCursor([]int{2, 2})
	if !c.skip(3) || !reflect.DeepEqual(c.idx, []int{1, 1}) {
		t.Errorf("skip(3) idx = %v, want [1 1]", c.idx)
	}
	if c.skip(1) {
		t.Error("skip() past the end should report false")
	}
}

func TestCursor_SkipLarge(t *testing.T) {
	c := newCursor([]int{3, 4})
	if !c.skip(6) || !reflect.DeepEqual(c.idx, []int{1, 2}) {
		t.Errorf("skip(6) idx = %v, want [1 2]", c.idx)
	}
	if c.skip(int(^uint(0) >> 1)) {
		t.Error("skip(MaxInt) should run off the end")
	}
	if c.valid() {
		t.Error("cursor should be exhausted")
	}
}

func TestCursor_Empty(t *testing.T) {
	for _, dims := range [][]int{nil, {0}, {3, 0}} {
		if newCursor(dims).valid() {
			t.Errorf("newCursor(%v) should start exhausted", dims)
		}
	}
}

func TestDims(t *testing.T) {
	if got := joinDims([]int{2, 3, 4}); got != "2,3,4" {
		t.Errorf("joinDims() = %q", got)
	}

	dims, err := parseDims("2, 3")
	if err != nil || !reflect.DeepEqual(dims, []int{2, 3}) {
		t.Errorf("parseDims() = %v, %v", dims, err)
	}
	for _, bad := range []string{"", "a", "2,-1", "2,,3"} {
		if _, err := parseDims(bad); !errors.Is(err, ErrMalformed) {
			t.Errorf("parseDims(%q) error = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestArrayShape(t *testing.T) {
	elem, dims := arrayShape(reflect.TypeFor[[2][3][4]int8](), reflect.Value{})
	if elem != reflect.TypeFor[int8]() || !reflect.DeepEqual(dims, []int{2, 3, 4}) {
		t.Errorf("arrayShape(array) = %v, %v", elem, dims)
	}

	elem, dims = arrayShape(reflect.TypeFor[[][2]int](), reflect.ValueOf(make([][2]int, 5)))
	if elem != reflect.TypeFor[[2]int]() || !reflect.DeepEqual(dims, []int{5}) {
		t.Errorf("arrayShape(slice) = %v, %v", elem, dims)
	}

	if !isBytes(reflect.TypeFor[[8]byte]()) || isBytes(reflect.TypeFor[[]int8]()) {
		t.Error("isBytes() should match only uint8 elements")
	}
}

type volume struct {
	Cells  [2][2][2]int
	Rows   [][2]string
	Sparse []float64
}

func TestArrays_RoundTrip(t *testing.T) {
	s, err := New[volume]()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	in := volume{
		Rows:   [][2]string{{"a", ""}, {"", "d"}},
		Sparse: []float64{0, 0, 1.5, 0},
	}
	in.Cells[0][0][1] = 1
	in.Cells[1][1][1] = 8

	data, err := s.Marshal(ctx, in)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := s.Unmarshal(ctx, data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("RoundTrip() = %+v, want %+v\n%s", out, in, data)
	}
}

func TestArrays_DefaultElements(t *testing.T) {
	s, err := New[volume]()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	in := volume{Rows: make([][2]string, 2), Sparse: []float64{0, 0, 0}}

	data, err := s.Marshal(ctx, in)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := s.Unmarshal(ctx, data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("RoundTrip() = %+v, want %+v\n%s", out, in, data)
	}
}

func TestArrays_Read(t *testing.T) {
	s, err := New[volume]()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	out, err := s.Unmarshal(ctx, []byte(`<volume><Sparse><item>1</item><item skipped="2">4</item></Sparse></volume>`))
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if want := []float64{1, 0, 0, 4}; !reflect.DeepEqual(out.Sparse, want) {
		t.Errorf("Sparse without dim = %v, want %v", out.Sparse, want)
	}

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"rank mismatch", `<volume><Cells dim="2,2"><item>1</item></Cells></volume>`, ErrMalformed},
		{"extent mismatch", `<volume><Cells dim="2,2,3"><item>1</item></Cells></volume>`, ErrMalformed},
		{"skip past end", `<volume><Sparse dim="2"><item skipped="2">1</item></Sparse></volume>`, ErrArrayOverflow},
		{"bad skipped", `<volume><Sparse dim="2"><item skipped="x">1</item></Sparse></volume>`, ErrMalformed},
		{"stray element", `<volume><Sparse dim="1"><cell>1</cell></Sparse></volume>`, ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Unmarshal(ctx, []byte(tt.doc)); !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

type payload struct {
	Raw   []byte
	Fixed [2]byte
}

func TestBytes_Errors(t *testing.T) {
	s, err := New[payload]()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not base64", `<payload><Raw>***</Raw></payload>`, ErrMalformed},
		{"dim mismatch", `<payload><Raw dim="9">aGk=</Raw></payload>`, ErrMalformed},
		{"too long", `<payload><Fixed>aGVsbG8=</Fixed></payload>`, ErrArrayOverflow},
		{"children", `<payload><Raw><item>1</item></Raw></payload>`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Unmarshal(ctx, []byte(tt.doc)); !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}

	out, err := s.Unmarshal(ctx, []byte(`<payload><Fixed>aA==</Fixed></payload>`))
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if out.Fixed != [2]byte{'h', 0} {
		t.Errorf("short byte array = %v", out.Fixed)
	}
}

type crate struct {
	Contents any
}

func TestArrays_Limits(t *testing.T) {
	ctx := context.Background()
	s, err := New[volume]()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	boxes, err := New[crate]()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tests := []struct {
		name string
		read func([]byte) error
		doc  string
		want error
	}{
		{"huge dim", unmarshalErr(ctx, s), `<volume><Sparse dim="4000000000000"><item>1</item></Sparse></volume>`, ErrArrayOverflow},
		{"max dim", unmarshalErr(ctx, s), `<volume><Sparse dim="9223372036854775807"></Sparse></volume>`, ErrArrayOverflow},
		{"huge skipped", unmarshalErr(ctx, s), `<volume><Sparse dim="2"><item skipped="9223372036854775807">1</item></Sparse></volume>`, ErrArrayOverflow},
		{"huge skipped without dim", unmarshalErr(ctx, s), `<volume><Sparse><item skipped="4000000000000">1</item></Sparse></volume>`, ErrArrayOverflow},
		{"negative array type", unmarshalErr(ctx, boxes), `<crate><Contents type="[-1]int"><item>1</item></Contents></crate>`, ErrUnknownType},
		{"huge array type", unmarshalErr(ctx, boxes), `<crate><Contents type="[4000000000000]int64"><item>1</item></Contents></crate>`, ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.read([]byte(tt.doc)); !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestArrays_MaxLength(t *testing.T) {
	ctx := context.Background()
	doc := []byte(`<volume><Sparse dim="5"><item skipped="4">1</item></Sparse></volume>`)

	s, err := New[volume](WithMaxLength(4))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := s.Unmarshal(ctx, doc); !errors.Is(err, ErrArrayOverflow) {
		t.Errorf("Unmarshal() error = %v, want ErrArrayOverflow", err)
	}

	s, err = New[volume](WithMaxLength(0))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	out, err := s.Unmarshal(ctx, doc)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if want := []float64{0, 0, 0, 0, 1}; !reflect.DeepEqual(out.Sparse, want) {
		t.Errorf("Sparse = %v, want %v", out.Sparse, want)
	}

	if _, err := New[volume](WithMaxLength(-1)); !errors.Is(err, ErrArrayOverflow) {
		t.Errorf("New(negative length) error = %v, want ErrArrayOverflow", err)
	}
}

func unmarshalErr[T any](ctx context.Context, s *Serializer[T]) func([]byte) error {
	return func(data []byte) error {
		_, err := s.Unmarshal(ctx, data)
		return err
	}
}
