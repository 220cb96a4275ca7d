package weave

import (
	"reflect"
)

// trampoline is implemented by the Func and Action types.
type trampoline interface {
	body() any
}

// checkBody rejects a trampoline body that cannot itself be written.
func checkBody(body any) error {
	v := reflect.ValueOf(body)
	if v.IsNil() {
		return newSerializationError(ErrUnsupportedCallable, "", "nil body")
	}
	if !decomposable(v) {
		return newSerializationError(ErrUnsupportedCallable, "", "body %s is neither registered nor bound", v.Type())
	}
	return nil
}

// Func0 is a func whose captured state is written alongside a
// registered body. Build one with MakeFunc0.
type Func0[S, R any] struct {
	State S
	Body  func(S) R
}

// Call runs the body with the captured state.
func (f *Func0[S, R]) Call() R {
	return f.Body(f.State)
}

func (f *Func0[S, R]) body() any { return f.Body }

// MakeFunc0 returns a func calling body with state. Unlike a closure the
// result can be written: body must be registered with RegisterFunc or
// built by Bind, and state is written as an ordinary value.
func MakeFunc0[S, R any](state S, body func(S) R) (func() R, error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func() R](&Func0[S, R]{State: state, Body: body}, "Call")
}

// Func1 carries State for a body taking 1 argument.
type Func1[S, A1, R any] struct {
	State S
	Body  func(S, A1) R
}

// Call runs the body with the captured state.
func (f *Func1[S, A1, R]) Call(a1 A1) R {
	return f.Body(f.State, a1)
}

func (f *Func1[S, A1, R]) body() any { return f.Body }

// MakeFunc1 returns a writable func calling body with state.
func MakeFunc1[S, A1, R any](state S, body func(S, A1) R) (func(A1) R, error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1) R](&Func1[S, A1, R]{State: state, Body: body}, "Call")
}

// Func2 carries State for a body taking 2 arguments.
type Func2[S, A1, A2, R any] struct {
	State S
	Body  func(S, A1, A2) R
}

// Call runs the body with the captured state.
func (f *Func2[S, A1, A2, R]) Call(a1 A1, a2 A2) R {
	return f.Body(f.State, a1, a2)
}

func (f *Func2[S, A1, A2, R]) body() any { return f.Body }

// MakeFunc2 returns a writable func calling body with state.
func MakeFunc2[S, A1, A2, R any](state S, body func(S, A1, A2) R) (func(A1, A2) R, error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1, A2) R](&Func2[S, A1, A2, R]{State: state, Body: body}, "Call")
}

// Func3 carries State for a body taking 3 arguments.
type Func3[S, A1, A2, A3, R any] struct {
	State S
	Body  func(S, A1, A2, A3) R
}

// Call runs the body with the captured state.
func (f *Func3[S, A1, A2, A3, R]) Call(a1 A1, a2 A2, a3 A3) R {
	return f.Body(f.State, a1, a2, a3)
}

func (f *Func3[S, A1, A2, A3, R]) body() any { return f.Body }

// MakeFunc3 returns a writable func calling body with state.
func MakeFunc3[S, A1, A2, A3, R any](state S, body func(S, A1, A2, A3) R) (func(A1, A2, A3) R, error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1, A2, A3) R](&Func3[S, A1, A2, A3, R]{State: state, Body: body}, "Call")
}

// Func4 carries State for a body taking 4 arguments.
type Func4[S, A1, A2, A3, A4, R any] struct {
	State S
	Body  func(S, A1, A2, A3, A4) R
}

// Call runs the body with the captured state.
func (f *Func4[S, A1, A2, A3, A4, R]) Call(a1 A1, a2 A2, a3 A3, a4 A4) R {
	return f.Body(f.State, a1, a2, a3, a4)
}

func (f *Func4[S, A1, A2, A3, A4, R]) body() any { return f.Body }

// MakeFunc4 returns a writable func calling body with state.
func MakeFunc4[S, A1, A2, A3, A4, R any](state S, body func(S, A1, A2, A3, A4) R) (func(A1, A2, A3, A4) R, error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1, A2, A3, A4) R](&Func4[S, A1, A2, A3, A4, R]{State: state, Body: body}, "Call")
}

// Action0 is a func with no result whose captured state is written
// alongside a registered body. Build one with MakeAction0.
type Action0[S any] struct {
	State S
	Body  func(S)
}

// Call runs the body with the captured state.
func (f *Action0[S]) Call() {
	f.Body(f.State)
}

func (f *Action0[S]) body() any { return f.Body }

// MakeAction0 returns a writable func calling body with state.
func MakeAction0[S any](state S, body func(S)) (func(), error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func()](&Action0[S]{State: state, Body: body}, "Call")
}

// Action1 carries State for a body taking 1 argument.
type Action1[S, A1 any] struct {
	State S
	Body  func(S, A1)
}

// Call runs the body with the captured state.
func (f *Action1[S, A1]) Call(a1 A1) {
	f.Body(f.State, a1)
}

func (f *Action1[S, A1]) body() any { return f.Body }

// MakeAction1 returns a writable func calling body with state.
func MakeAction1[S, A1 any](state S, body func(S, A1)) (func(A1), error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1)](&Action1[S, A1]{State: state, Body: body}, "Call")
}

// Action2 carries State for a body taking 2 arguments.
type Action2[S, A1, A2 any] struct {
	State S
	Body  func(S, A1, A2)
}

// Call runs the body with the captured state.
func (f *Action2[S, A1, A2]) Call(a1 A1, a2 A2) {
	f.Body(f.State, a1, a2)
}

func (f *Action2[S, A1, A2]) body() any { return f.Body }

// MakeAction2 returns a writable func calling body with state.
func MakeAction2[S, A1, A2 any](state S, body func(S, A1, A2)) (func(A1, A2), error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1, A2)](&Action2[S, A1, A2]{State: state, Body: body}, "Call")
}

// Action3 carries State for a body taking 3 arguments.
type Action3[S, A1, A2, A3 any] struct {
	State S
	Body  func(S, A1, A2, A3)
}

// Call runs the body with the captured state.
func (f *Action3[S, A1, A2, A3]) Call(a1 A1, a2 A2, a3 A3) {
	f.Body(f.State, a1, a2, a3)
}

func (f *Action3[S, A1, A2, A3]) body() any { return f.Body }

// MakeAction3 returns a writable func calling body with state.
func MakeAction3[S, A1, A2, A3 any](state S, body func(S, A1, A2, A3)) (func(A1, A2, A3), error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1, A2, A3)](&Action3[S, A1, A2, A3]{State: state, Body: body}, "Call")
}

// Action4 carries State for a body taking 4 arguments.
type Action4[S, A1, A2, A3, A4 any] struct {
	State S
	Body  func(S, A1, A2, A3, A4)
}

// Call runs the body with the captured state.
func (f *Action4[S, A1, A2, A3, A4]) Call(a1 A1, a2 A2, a3 A3, a4 A4) {
	f.Body(f.State, a1, a2, a3, a4)
}

func (f *Action4[S, A1, A2, A3, A4]) body() any { return f.Body }

// MakeAction4 returns a writable func calling body with state.
func MakeAction4[S, A1, A2, A3, A4 any](state S, body func(S, A1, A2, A3, A4)) (func(A1, A2, A3, A4), error) {
	if err := checkBody(body); err != nil {
		return nil, err
	}
	return Bind[func(A1, A2, A3, A4)](&Action4[S, A1, A2, A3, A4]{State: state, Body: body}, "Call")
}
