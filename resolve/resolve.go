// Package resolve provides the resolver context: a stack-scoped mapping from
// template-variable name to value, used to resolve dataset locations at run
// time. A single Context is owned by the host executor and threaded explicitly
// to every component that needs it; there is no process-wide singleton.
package resolve

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Callable resolves template variables the static mapping cannot, e.g. by
// looking up a secret store. Callables only exist at build time; they cannot
// cross a process boundary.
type Callable func(unresolved string) (string, error)

// Snapshot is a flat key/value capture of a Context. Only JSON-safe scalars
// are allowed so the snapshot can be shipped to a worker process unchanged.
type Snapshot map[string]interface{}

type scope struct {
	mapper    map[string]interface{}
	callables []Callable
}

// Context holds the currently visible template variables. Scopes are pushed
// and popped in LIFO order; variables in an inner scope shadow outer ones.
type Context struct {
	mu     sync.RWMutex
	scopes []scope
}

func NewContext() *Context {
	return &Context{}
}

// WithVars pushes a new scope and returns a release function that pops it.
// The release function must be called exactly once, typically deferred:
//
//	release := rc.WithVars(resolve.Vars{"build_id": "20210616A"})
//	defer release()
func (c *Context) WithVars(vars map[string]interface{}, callables ...Callable) (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	c.scopes = append(c.scopes, scope{mapper: copied, callables: callables})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.scopes = c.scopes[:len(c.scopes)-1]
		})
	}
}

// Lookup returns the value bound to a variable name, innermost scope first.
func (c *Context) Lookup(name string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i].mapper[name]; ok {
			return v, true
		}
	}
	return nil, false
}

var templateVarPattern = regexp.MustCompile(`{.+?}`)

// NeedsResolution reports whether s still contains template variables.
func NeedsResolution(s string) bool {
	return strings.Contains(s, "{")
}

// Resolve substitutes every template variable in s, e.g.
// "csv://{build_dir}/animals.csv". Callables are tried after the static
// mappings. It is an error if any variable remains unresolved.
func (c *Context) Resolve(s string) (string, error) {
	if !NeedsResolution(s) {
		return s, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	resolving := s
	for i := len(c.scopes) - 1; i >= 0; i-- {
		for k, v := range c.scopes[i].mapper {
			templateVar := "{" + k + "}"
			if strings.Contains(resolving, templateVar) {
				resolving = strings.ReplaceAll(resolving, templateVar, fmt.Sprint(v))
			}
		}
		if !NeedsResolution(resolving) {
			return resolving, nil
		}
		for _, callable := range c.scopes[i].callables {
			resolved, err := callable(resolving)
			if err != nil {
				return "", errors.Wrap(err, "resolver callable")
			}
			resolving = resolved
			if !NeedsResolution(resolving) {
				return resolving, nil
			}
		}
	}

	// the partially resolved value is not included: it may embed secrets
	missing := strings.Join(templateVarPattern.FindAllString(resolving, -1), ",")
	return "", errors.Errorf("unable to fully resolve %q: missing template variables %s", s, missing)
}

// Capture flattens the visible variables into a Snapshot that can cross the
// process boundary. Capturing a context that holds callables or non-scalar
// values is a hard error: a serialized snapshot cannot carry them.
func (c *Context) Capture() (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(Snapshot)
	for _, sc := range c.scopes {
		if len(sc.callables) > 0 {
			return nil, errors.New("cannot capture resolver context: callables are a build-time-only construct")
		}
		for k, v := range sc.mapper {
			if !isJSONSafeScalar(v) {
				return nil, errors.Errorf("cannot capture resolver context: %q holds a non-scalar %T", k, v)
			}
			snapshot[k] = v
		}
	}
	return snapshot, nil
}

// Apply pushes the snapshot as a single scope. Used by worker processes to
// install the explicitly-transmitted context after a reset.
func (c *Context) Apply(s Snapshot) (release func()) {
	return c.WithVars(s)
}

// Reset discards every scope. Workers call this as their first step so that
// nothing inherited from the parent process can leak in; only the explicit
// snapshot may be visible afterwards.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes = nil
}

func isJSONSafeScalar(v interface{}) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
