package network

// Endpoint is the participant application code uses to talk to a network.
type Endpoint struct {
	Signals
}

// NewEndpoint creates an endpoint. Connect it to a Router before using it.
func NewEndpoint() *Endpoint {
	return &Endpoint{}
}

// Listen registers h for messages sent by the sources in from on topic.
func (n *Endpoint) Listen(from Selector, topic string, h Handler) error {
	return n.RaiseListen(ListenRequest{To: from, Topics: []string{topic}, Handler: h})
}

// ListenFunc is Listen for a plain function. It returns the created handler
// so the registration can be removed later.
func (n *Endpoint) ListenFunc(from Selector, topic string, fn func(*Call)) (Handler, error) {
	h := NewHandler(fn)
	return h, n.Listen(from, topic, h)
}

// Unlisten removes the registrations of h for the sources in from on topic.
// A nil h removes every handler of the topic.
func (n *Endpoint) Unlisten(from Selector, topic string, h Handler) error {
	req := ListenRequest{To: from, Handler: h}
	if topic != "" {
		req.Topics = []string{topic}
	}
	return n.RaiseUnlisten(req)
}

// Send dispatches data on topic to the listeners in to.
func (n *Endpoint) Send(to Selector, topic string, data any, opts ...CallOption) error {
	return n.RaiseSend(SendRequest{To: to, Topic: topic, Data: data, Options: opts})
}
