// Package stacktrace flattens a stack trace into ordered, human-readable
// lines. A sub-task failure must cross a process boundary, so full stack
// fidelity cannot be preserved; this flattened projection is what travels.
package stacktrace

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/maruel/panicparse/stack"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// FromError flattens the stack carried by a pkg/errors error. When the error
// carries none, the current goroutine's stack is used instead so the
// traceback is never empty.
func FromError(err error) []string {
	var tracer stackTracer
	for e := err; e != nil; {
		if st, ok := e.(stackTracer); ok {
			tracer = st
		}
		unwrappable, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = unwrappable.Unwrap()
	}
	if tracer == nil {
		return Capture()
	}

	var lines []string
	for _, frame := range tracer.StackTrace() {
		lines = append(lines, fmt.Sprintf("%n (%s:%d)", frame, frame, frame))
	}
	return lines
}

// Capture flattens the current goroutine's stack, with frames belonging to
// this package trimmed off the top.
func Capture() []string {
	buf := make([]byte, 8192)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	c, err := stack.ParseDump(bytes.NewReader(buf), io.Discard, false)
	if err != nil || len(c.Goroutines) == 0 {
		// raw dump is better than nothing
		return strings.Split(strings.TrimSpace(string(buf)), "\n")
	}

	calls := c.Goroutines[0].Signature.Stack.Calls
	index, _ := funk.FindKey(calls, func(call stack.Call) bool {
		pkg := call.Func.PkgDotName()
		return !strings.HasPrefix(pkg, "stacktrace.") && !strings.HasPrefix(pkg, "runtime.")
	})
	if i, ok := index.(int); ok {
		calls = calls[i:]
	}

	lines := make([]string, len(calls))
	for i, call := range calls {
		lines[i] = fmt.Sprintf("%s (%s)", call.Func.PkgDotName(), call.SrcLine())
	}
	return lines
}

// KindOf names the error's concrete kind, unwrapping pkg/errors decoration so
// the cause's type is reported rather than a wrapper's.
func KindOf(err error) string {
	return fmt.Sprintf("%T", errors.Cause(err))
}
