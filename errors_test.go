package weave

import (
	"errors"
	"testing"
)

func TestSerializationError_Is(t *testing.T) {
	err := newSerializationError(ErrUnknownField, "Portfolio/Trades", "no field %q", "Qty")

	if !errors.Is(err, ErrUnknownField) {
		t.Error("SerializationError should unwrap to ErrUnknownField")
	}
	if errors.Is(err, ErrUnknownType) {
		t.Error("SerializationError should not match ErrUnknownType")
	}

	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should find *SerializationError")
	}
	if se.Path != "Portfolio/Trades" {
		t.Errorf("Path = %q, want %q", se.Path, "Portfolio/Trades")
	}
}

func TestSerializationError_Message(t *testing.T) {
	cause := errors.New("unexpected EOF")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "detail and path",
			err:  newSerializationError(ErrUnresolvedRef, "Root/Owner", "id %q", "7"),
			want: `unresolved reference: id "7" (at Root/Owner)`,
		},
		{
			name: "detail only",
			err:  newSerializationError(ErrMaxDepth, "", "limit %d", 3),
			want: "maximum depth exceeded: limit 3",
		},
		{
			name: "cause",
			err:  wrapSerializationError(ErrMalformed, "Root", cause),
			want: "malformed document (at Root): unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapSerializationError_KeepsExisting(t *testing.T) {
	inner := newSerializationError(ErrUnknownType, "Root/Main", "%q", "x.Y")
	outer := wrapSerializationError(ErrUnsupportedType, "Root", inner)

	if outer != inner {
		t.Error("wrapping a SerializationError should return it unchanged")
	}
	if !errors.Is(outer, ErrUnknownType) {
		t.Error("wrapped error should keep its sentinel")
	}
}

func TestWrapSerializationError_Cause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapSerializationError(ErrHookFailed, "Root", cause)

	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should find *SerializationError")
	}
	if se.Cause != cause {
		t.Errorf("Cause = %v, want %v", se.Cause, cause)
	}
	if !errors.Is(err, ErrHookFailed) {
		t.Error("should unwrap to ErrHookFailed")
	}
}
