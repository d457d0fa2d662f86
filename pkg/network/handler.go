package network

// Handler serves calls delivered to a listener.
//
// Handlers are stored in sets keyed by identity, so implementations must be
// comparable. Pointer types always are.
type Handler interface {
	Serve(call *Call)
}

type funcHandler struct {
	fn func(*Call)
}

func (h *funcHandler) Serve(call *Call) {
	h.fn(call)
}

// NewHandler wraps fn in a Handler. Each returned value has its own identity,
// even when wrapping the same function twice.
func NewHandler(fn func(call *Call)) Handler {
	return &funcHandler{fn: fn}
}
