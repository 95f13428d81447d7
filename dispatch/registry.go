package dispatch

// Controller handles one operation. It may return a value to be converted
// into the response body, or finalize the response directly on the Context
// and return nil.
type Controller func(c *Context) (any, error)

// Registry is the controller table. It implements contract.ControllerChecker
// so compilation can verify that every operation is bound.
type Registry struct {
	controllers map[string]map[string]Controller
}

// NewRegistry returns an empty controller table.
func NewRegistry() *Registry {
	return &Registry{controllers: map[string]map[string]Controller{}}
}

// Register binds a controller function to a controller id and operation id.
// Re-registering replaces the previous binding.
func (r *Registry) Register(controllerID, operationID string, fn Controller) {
	ops, ok := r.controllers[controllerID]
	if !ok {
		ops = map[string]Controller{}
		r.controllers[controllerID] = ops
	}
	ops[operationID] = fn
}

// HasController reports whether a handler is bound for the pair.
func (r *Registry) HasController(controllerID, operationID string) bool {
	_, ok := r.lookup(controllerID, operationID)
	return ok
}

func (r *Registry) lookup(controllerID, operationID string) (Controller, bool) {
	ops, ok := r.controllers[controllerID]
	if !ok {
		return nil, false
	}
	fn, ok := ops[operationID]
	return fn, ok
}
