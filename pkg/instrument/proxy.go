package instrument

import (
	"context"
	"sort"

	"github.com/kart-io/trackinglog/pkg/errors"
)

// Wrapped is the result of Instrument: a *WrappedFunc or a *Proxy.
type Wrapped interface {
	Kind() Kind
	Name() string
}

// Instrument wraps target. Functions become a *WrappedFunc and classes a
// *Proxy over the methods present at this moment.
func (e *Engine) Instrument(target Target) (Wrapped, error) {
	switch t := target.(type) {
	case Function:
		return e.wrapFunc(t.Name, t.Name, t.Fn)
	case *Function:
		if t == nil {
			break
		}
		return e.wrapFunc(t.Name, t.Name, t.Fn)
	case *Class:
		if t == nil {
			break
		}
		return e.newProxy(t)
	}
	return nil, errors.ErrUnsupportedTargetKind.WithMessagef("cannot instrument %T", target)
}

// InstrumentValue resolves v and instruments the result.
func (e *Engine) InstrumentValue(name string, v any) (Wrapped, error) {
	t, err := Resolve(name, v)
	if err != nil {
		return nil, err
	}
	return e.Instrument(t)
}

// WrappedFunc is an instrumented callable.
type WrappedFunc struct {
	name   string
	label  string
	fn     Func
	engine *Engine
}

func (e *Engine) wrapFunc(name, label string, fn Func) (*WrappedFunc, error) {
	if fn == nil {
		return nil, errors.ErrUnsupportedTargetKind.WithMessagef("function %q has no body", name)
	}
	return &WrappedFunc{name: name, label: label, fn: fn, engine: e}, nil
}

// Kind implements Wrapped.
func (w *WrappedFunc) Kind() Kind { return KindFunction }

// Name returns the name of the wrapped callable.
func (w *WrappedFunc) Name() string { return w.name }

// Label returns the caller label written to the sink.
func (w *WrappedFunc) Label() string { return w.label }

// Unwrap returns the original callable.
func (w *WrappedFunc) Unwrap() Func { return w.fn }

// Call invokes the callable through the engine.
func (w *WrappedFunc) Call(ctx context.Context, args ...any) (any, error) {
	var out any
	err := w.engine.Run(ctx, w.label, func(ctx context.Context) error {
		var err error
		out, err = w.fn(ctx, args...)
		return err
	})
	return out, err
}

// Proxy exposes the method set of a Class with every method instrumented
// under the label "Class.Method".
//
// The proxy captures the methods present when it is built. A method added
// to the Class later can still be called through the proxy, but it runs
// without instrumentation.
type Proxy struct {
	class   *Class
	methods map[string]*WrappedFunc
	ctor    *WrappedFunc
}

func (e *Engine) newProxy(c *Class) (*Proxy, error) {
	p := &Proxy{class: c, methods: make(map[string]*WrappedFunc, len(c.Methods))}
	for name, fn := range c.Methods {
		w, err := e.wrapFunc(name, c.Name+"."+name, fn)
		if err != nil {
			return nil, err
		}
		p.methods[name] = w
	}
	if c.New != nil {
		w, err := e.wrapFunc("New", c.Name+".New", c.New)
		if err != nil {
			return nil, err
		}
		p.ctor = w
	}
	return p, nil
}

// Kind implements Wrapped.
func (p *Proxy) Kind() Kind { return KindClass }

// Name returns the class name.
func (p *Proxy) Name() string { return p.class.Name }

// Methods returns the instrumented method names in sorted order.
func (p *Proxy) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for n := range p.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instrumented reports whether method was captured when the proxy was built.
func (p *Proxy) Instrumented(method string) bool {
	_, ok := p.methods[method]
	return ok
}

// Method returns the instrumented method.
func (p *Proxy) Method(name string) (*WrappedFunc, bool) {
	w, ok := p.methods[name]
	return w, ok
}

// Call invokes method. Methods captured at wrap time are instrumented;
// methods added to the class afterwards are called directly.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (any, error) {
	if w, ok := p.methods[method]; ok {
		return w.Call(ctx, args...)
	}
	if fn, ok := p.class.Methods[method]; ok && fn != nil {
		return fn(ctx, args...)
	}
	return nil, errors.ErrMethodNotFound.WithMessagef("%s has no method %q", p.class.Name, method)
}

// New runs the class constructor through the engine and hands the engine's
// sink to the new instance if it implements SinkSetter.
func (p *Proxy) New(ctx context.Context, args ...any) (any, error) {
	if p.ctor == nil {
		return nil, errors.ErrMethodNotFound.WithMessagef("%s has no constructor", p.class.Name)
	}
	inst, err := p.ctor.Call(ctx, args...)
	if err != nil {
		return inst, err
	}
	if s, ok := inst.(SinkSetter); ok {
		s.SetSink(p.ctor.engine.sink)
	}
	return inst, nil
}
