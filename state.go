package sel

// State is the per-evaluation wrapper around an EvaluationContext. It adds
// the scope stack used by projection/selection loop variables and tracks the
// active object for chained dereferencing. A State lives for exactly one
// GetValue/SetValue call and is never shared between goroutines.
type State struct {
	ctx    EvaluationContext
	root   TypedValue
	config *Config

	active []TypedValue
	scopes []map[string]any
}

func newState(ctx EvaluationContext, root TypedValue, cfg *Config) *State {
	return &State{ctx: ctx, root: root, config: cfg}
}

// Context returns the embedder-supplied evaluation context.
func (s *State) Context() EvaluationContext {
	return s.ctx
}

// RootObject returns the root this evaluation runs against.
func (s *State) RootObject() TypedValue {
	return s.root
}

// ActiveObject is the object the next chained dereference applies to; the
// root when no chain is in progress.
func (s *State) ActiveObject() TypedValue {
	if len(s.active) == 0 {
		return s.root
	}
	return s.active[len(s.active)-1]
}

func (s *State) pushActiveObject(tv TypedValue) {
	s.active = append(s.active, tv)
}

func (s *State) popActiveObject() {
	if len(s.active) > 0 {
		s.active = s.active[:len(s.active)-1]
	}
}

// enterScope opens a local variable frame (e.g. #this/#index during
// projection). Frames shadow outer frames and context variables.
func (s *State) enterScope(vars map[string]any) {
	if vars == nil {
		vars = make(map[string]any)
	}
	s.scopes = append(s.scopes, vars)
}

func (s *State) exitScope() {
	if len(s.scopes) > 0 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// lookupVariable resolves #name: the implicit #this/#root first, then scope
// frames innermost-out, then the context's variables.
func (s *State) lookupVariable(name string) (any, bool) {
	switch name {
	case "this":
		return s.ActiveObject().Value, true
	case "root":
		return s.root.Value, true
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if v, ok := s.scopes[i][name]; ok {
			return v, true
		}
	}
	return s.ctx.LookupVariable(name)
}
