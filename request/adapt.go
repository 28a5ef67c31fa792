package request

import "github.com/gogazub/taskloop/internal/corelib"

// Runnable is the plainest postable shape: a zero-argument callback
// with no access to the Request that will wrap it.
type Runnable func()

// toRequest converts a value posted to a Handler into a *Request,
// accepting the three supported shapes: an already-built *Request,
// a Runnable, or an ExecFunc (a Request-consuming closure). Anything
// else is rejected with corelib.ErrInvalidRunnable.
func toRequest(v any, opts ...Option) (*Request, error) {
	switch fn := v.(type) {
	case *Request:
		return fn, nil
	case Runnable:
		return New(func(*Request) { fn() }, nil, opts...), nil
	case func():
		return New(func(*Request) { fn() }, nil, opts...), nil
	case ExecFunc:
		return New(fn, nil, opts...), nil
	case func(*Request):
		return New(fn, nil, opts...), nil
	default:
		return nil, corelib.ErrInvalidRunnable
	}
}
