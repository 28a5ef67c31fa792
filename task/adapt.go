package task

import "github.com/gogazub/taskloop/request"

// Runnable is the plainest callable shape: a zero-argument callback
// with no access to the Task and no deferred post body.
type Runnable func()

// RequestFunc is the other function-signature world: a request-style
// body, `fn(*request.Request)`, with no return value.
type RequestFunc func(*request.Request)

// FromRunnable lifts a zero-argument callback into an ExecFunc that
// always returns a nil post body.
func FromRunnable(fn Runnable) ExecFunc {
	return func(*Task) PostBody {
		fn()
		return nil
	}
}

// FromRequestFunc lifts a request-style body into an ExecFunc, giving
// it no access to the Task and discarding any deferred post body.
func FromRequestFunc(fn RequestFunc) ExecFunc {
	return func(*Task) PostBody {
		fn(nil)
		return nil
	}
}

// ToRequestExec adapts a Task-style ExecFunc into a request.ExecFunc,
// for posting a Task's primary body directly onto a Handler without
// going through Task.Execute. The returned post body, if any, is
// invoked inline before the request.ExecFunc returns.
func ToRequestExec(fn ExecFunc) request.ExecFunc {
	return func(r *request.Request) {
		post := fn(nil)
		if post != nil {
			post()
		}
	}
}

// ToRequestPost adapts a Task-style PostExecFunc into a
// request.PostExecFunc with the same (state, errors) signature; the
// two packages share the request.State bitfield so no translation is
// needed beyond the function type.
func ToRequestPost(fn PostExecFunc) request.PostExecFunc {
	return request.PostExecFunc(fn)
}
