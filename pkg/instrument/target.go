package instrument

import (
	"context"
	"reflect"
	"sort"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/logmanager"
)

// Func is the uniform shape of an instrumentable callable.
type Func func(ctx context.Context, args ...any) (any, error)

// Kind tells the two target variants apart.
type Kind int

const (
	KindFunction Kind = iota + 1
	KindClass
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	}
	return "unknown"
}

// Target is a wrap target: a Function or a *Class.
type Target interface {
	Kind() Kind
	TargetName() string
}

// Function is a single named callable.
type Function struct {
	Name string
	Fn   Func
}

// Kind implements Target.
func (Function) Kind() Kind { return KindFunction }

// TargetName implements Target.
func (f Function) TargetName() string { return f.Name }

// Class is a named method set and an optional constructor. Instrument
// snapshots Methods; entries added afterwards are reachable through the proxy
// but are not instrumented.
type Class struct {
	Name    string
	Methods map[string]Func
	New     Func
}

// Kind implements Target.
func (*Class) Kind() Kind { return KindClass }

// TargetName implements Target.
func (c *Class) TargetName() string { return c.Name }

// MethodNames returns the current method names in sorted order.
func (c *Class) MethodNames() []string {
	names := make([]string, 0, len(c.Methods))
	for n := range c.Methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SinkSetter is implemented by instances that want a back-reference to the
// sink of the proxy that constructed them.
type SinkSetter interface {
	SetSink(s *logmanager.Sink)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	sinkType    = reflect.TypeOf((*logmanager.Sink)(nil))
)

// Resolve turns v into a Target:
//
//   - a Target is returned as is
//   - a Func or any other func value becomes a Function
//   - a struct or pointer to struct becomes a Class of its exported methods,
//     bound to v
//
// Reflected functions receive the call context in a context.Context
// parameter and the active sink in a *logmanager.Sink parameter; the
// remaining parameters take the call arguments in order. A trailing error
// result is returned as the call error. Any other v fails with
// ErrUnsupportedTargetKind.
func Resolve(name string, v any) (Target, error) {
	switch t := v.(type) {
	case nil:
		return nil, errors.ErrUnsupportedTargetKind.WithMessage("nil target")
	case Target:
		return t, nil
	case Func:
		return Function{Name: name, Fn: t}, nil
	case func(context.Context, ...any) (any, error):
		return Function{Name: name, Fn: t}, nil
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.Func:
		if rv.IsNil() {
			return nil, errors.ErrUnsupportedTargetKind.WithMessagef("nil func %q", name)
		}
		return Function{Name: name, Fn: reflectFunc(name, rv)}, nil

	case rv.Kind() == reflect.Struct,
		rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct:
		if name == "" {
			name = reflect.Indirect(rv).Type().Name()
		}
		c := &Class{Name: name, Methods: make(map[string]Func)}
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			m := rt.Method(i)
			c.Methods[m.Name] = reflectFunc(name+"."+m.Name, rv.Method(i))
		}
		return c, nil
	}
	return nil, errors.ErrUnsupportedTargetKind.WithMessagef("cannot instrument %q of type %T", name, v)
}

// reflectFunc adapts an arbitrary func value to Func.
func reflectFunc(name string, fn reflect.Value) Func {
	ft := fn.Type()
	returnsErr := ft.NumOut() > 0 && ft.Out(ft.NumOut()-1) == errorType

	return func(ctx context.Context, args ...any) (any, error) {
		in, err := bindArgs(ctx, name, ft, args)
		if err != nil {
			return nil, err
		}

		out := fn.Call(in)

		var callErr error
		if returnsErr {
			if e := out[len(out)-1]; !e.IsNil() {
				callErr = e.Interface().(error)
			}
			out = out[:len(out)-1]
		}
		switch len(out) {
		case 0:
			return nil, callErr
		case 1:
			return out[0].Interface(), callErr
		}
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, callErr
	}
}

func bindArgs(ctx context.Context, name string, ft reflect.Type, args []any) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, ft.NumIn())
	next := 0
	for i := 0; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		switch {
		case pt == contextType:
			in = append(in, reflect.ValueOf(ctx))
			continue
		case pt == sinkType:
			s, _ := SinkFromContext(ctx)
			in = append(in, reflect.ValueOf(s))
			continue
		}

		if ft.IsVariadic() && i == ft.NumIn()-1 {
			elem := pt.Elem()
			for ; next < len(args); next++ {
				v, err := argValue(name, args[next], elem, next)
				if err != nil {
					return nil, err
				}
				in = append(in, v)
			}
			continue
		}

		if next >= len(args) {
			return nil, errors.ErrBadArguments.WithMessagef("%s: missing argument %d of type %s", name, next, pt)
		}
		v, err := argValue(name, args[next], pt, next)
		if err != nil {
			return nil, err
		}
		in = append(in, v)
		next++
	}
	if next < len(args) {
		return nil, errors.ErrBadArguments.WithMessagef("%s: %d unexpected arguments", name, len(args)-next)
	}
	return in, nil
}

func argValue(name string, arg any, pt reflect.Type, pos int) (reflect.Value, error) {
	if arg == nil {
		switch pt.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, errors.ErrBadArguments.WithMessagef("%s: argument %d is nil, want %s", name, pos, pt)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	return reflect.Value{}, errors.ErrBadArguments.WithMessagef("%s: argument %d is %s, want %s", name, pos, v.Type(), pt)
}
