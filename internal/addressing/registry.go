// Package addressing implements the routing table of a network.
//
// Registrations are stored in four nested levels:
//
//	gate ("" for the local network) -> source node -> listener -> topic -> handlers
//
// Empty levels are pruned as soon as they become empty, so the presence of a
// key always means that at least one handler lives below it.
package addressing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

var (
	// ErrGateToGate is returned when both ends of a send go through a gate.
	ErrGateToGate = errors.New("gate to gate routing is not allowed")

	// ErrRemovalDependency is returned when a removal filter is given
	// without the filters it depends on.
	ErrRemovalDependency = errors.New("removal filter given without the filters it depends on")
)

type handlerSet []network.Handler

func (s handlerSet) index(h network.Handler) int {
	for i, existing := range s {
		if existing == h {
			return i
		}
	}
	return -1
}

func (s handlerSet) with(h network.Handler) handlerSet {
	if s.index(h) >= 0 {
		return s
	}
	return append(s, h)
}

func (s handlerSet) without(h network.Handler) handlerSet {
	i := s.index(h)
	if i < 0 {
		return s
	}
	out := make(handlerSet, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

type (
	topicTable    map[string]handlerSet
	listenerTable map[string]topicTable
	sourceTable   map[string]listenerTable
	gateTable     map[string]sourceTable
)

// Group is one destination of a resolved send: the handlers to fire for a
// local listener, or the gate to transfer the call to.
type Group struct {
	Gate     string
	Node     string
	Handlers []network.Handler
}

// Address returns the destination address of the group.
func (g Group) Address() network.Address {
	return network.Address{Gate: g.Gate, Node: g.Node}
}

// Registry is the address registry of a network. It is not safe for
// concurrent use.
type Registry struct {
	table gateTable
	gates map[string]struct{}
	count int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		table: make(gateTable),
		gates: make(map[string]struct{}),
	}
}

// Add registers h for the listener as on every topic, for messages sent by
// every source of from. Adding an existing registration is a no-op.
func (r *Registry) Add(as string, from network.Selector, topics []string, h network.Handler) {
	for _, src := range from {
		sources, ok := r.table[src.Gate]
		if !ok {
			sources = make(sourceTable)
			r.table[src.Gate] = sources
		}
		listeners, ok := sources[src.Node]
		if !ok {
			listeners = make(listenerTable)
			sources[src.Node] = listeners
		}
		topicsOf, ok := listeners[as]
		if !ok {
			topicsOf = make(topicTable)
			listeners[as] = topicsOf
		}
		for _, topic := range topics {
			before := len(topicsOf[topic])
			topicsOf[topic] = topicsOf[topic].with(h)
			r.count += len(topicsOf[topic]) - before
		}
	}
}

// Remove deletes registrations of the listener as. Each filter is optional
// but only when the filters depending on it are absent too: h requires
// topics, and topics require from. With no filter every registration of as
// is removed.
func (r *Registry) Remove(as string, from network.Selector, topics []string, h network.Handler) error {
	if h != nil && len(topics) == 0 {
		return fmt.Errorf("%w: handler requires topics", ErrRemovalDependency)
	}
	if len(topics) > 0 && len(from) == 0 {
		return fmt.Errorf("%w: topics require sources", ErrRemovalDependency)
	}

	if len(from) == 0 {
		for gate, sources := range r.table {
			for node := range sources {
				r.removeListener(gate, node, as, nil, nil)
			}
		}
		return nil
	}

	for _, src := range from {
		r.removeListener(src.Gate, src.Node, as, topics, h)
	}
	return nil
}

func (r *Registry) removeListener(gate, node, as string, topics []string, h network.Handler) {
	sources, ok := r.table[gate]
	if !ok {
		return
	}
	listeners, ok := sources[node]
	if !ok {
		return
	}
	topicsOf, ok := listeners[as]
	if !ok {
		return
	}

	switch {
	case len(topics) == 0:
		for _, set := range topicsOf {
			r.count -= len(set)
		}
		clear(topicsOf)
	case h == nil:
		for _, topic := range topics {
			r.count -= len(topicsOf[topic])
			delete(topicsOf, topic)
		}
	default:
		for _, topic := range topics {
			set, ok := topicsOf[topic]
			if !ok {
				continue
			}
			before := len(set)
			set = set.without(h)
			r.count -= before - len(set)
			if len(set) == 0 {
				delete(topicsOf, topic)
			} else {
				topicsOf[topic] = set
			}
		}
	}

	if len(topicsOf) == 0 {
		delete(listeners, as)
	}
	if len(listeners) == 0 {
		delete(sources, node)
	}
	if len(sources) == 0 {
		delete(r.table, gate)
	}
}

// AddGate records a gate name for wildcard gate expansion.
func (r *Registry) AddGate(name string) {
	r.gates[name] = struct{}{}
}

// RemoveGate forgets a gate name.
func (r *Registry) RemoveGate(name string) {
	delete(r.gates, name)
}

// Gates returns the registered gate names, sorted.
func (r *Registry) Gates() []string {
	names := make([]string, 0, len(r.gates))
	for name := range r.gates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of (source, listener, topic, handler) registrations.
func (r *Registry) Len() int {
	return r.count
}

// Resolve returns the destination groups of a message sent by from to the
// listeners in to on topic. Groups are deduplicated by (gate, node) and come
// back in selector order; a literal destination always produces a group, even
// without handlers, so that callers can report unreachable peers.
func (r *Registry) Resolve(from network.Address, to network.Selector, topic string) ([]Group, error) {
	if from.IsGated() && to.IsGated() {
		return nil, fmt.Errorf("%w: %s to %v", ErrGateToGate, from, to)
	}

	sources := r.sourcesOf(from)
	var groups []Group
	seen := make(map[network.Address]int)

	emit := func(gate, node string, handlers handlerSet) {
		key := network.Address{Gate: gate, Node: node}
		if i, ok := seen[key]; ok {
			for _, h := range handlers {
				groups[i].Handlers = handlerSet(groups[i].Handlers).with(h)
			}
			return
		}
		seen[key] = len(groups)
		groups = append(groups, Group{Gate: gate, Node: node, Handlers: handlers})
	}

	for _, dst := range to {
		switch {
		case dst.Gate == network.Wildcard:
			for _, gate := range r.Gates() {
				emit(gate, dst.Node, nil)
			}
		case dst.Gate != "":
			emit(dst.Gate, dst.Node, nil)
		case dst.Node == network.Wildcard:
			for _, listener := range r.listenersOf(sources, topic) {
				emit("", listener, r.handlersOf(sources, listener, topic))
			}
		default:
			emit("", dst.Node, r.handlersOf(sources, dst.Node, topic))
		}
	}
	return groups, nil
}

// sourcesOf returns the listener tables consulted for a sender: its literal
// address, the wildcard gate when it came through one, and the wildcard node.
func (r *Registry) sourcesOf(from network.Address) []listenerTable {
	keys := []network.Address{from}
	if from.IsGated() {
		keys = append(keys, network.Address{Gate: network.Wildcard, Node: from.Node})
	}
	if from.Node != network.Wildcard {
		keys = append(keys, network.Address{Gate: from.Gate, Node: network.Wildcard})
		if from.IsGated() {
			keys = append(keys, network.Address{Gate: network.Wildcard, Node: network.Wildcard})
		}
	}

	var tables []listenerTable
	for _, key := range keys {
		if listeners, ok := r.table[key.Gate][key.Node]; ok {
			tables = append(tables, listeners)
		}
	}
	return tables
}

func (r *Registry) handlersOf(sources []listenerTable, listener, topic string) handlerSet {
	var set handlerSet
	for _, listeners := range sources {
		topicsOf, ok := listeners[listener]
		if !ok {
			continue
		}
		for _, h := range topicsOf[topic] {
			set = set.with(h)
		}
		if topic != network.Wildcard {
			for _, h := range topicsOf[network.Wildcard] {
				set = set.with(h)
			}
		}
	}
	return set
}

func (r *Registry) listenersOf(sources []listenerTable, topic string) []string {
	found := make(map[string]struct{})
	for _, listeners := range sources {
		for listener, topicsOf := range listeners {
			_, literal := topicsOf[topic]
			_, wildcard := topicsOf[network.Wildcard]
			if literal || wildcard {
				found[listener] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
