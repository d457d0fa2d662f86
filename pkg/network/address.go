package network

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Wildcard matches every node, gate or topic at the level it is used.
const Wildcard = "*"

var errInvalidAddress = errors.New("address must be a string or a {gate, node} object")

// Address is a single (gate-or-absent, node) pair. An empty Gate means the
// node lives in the local network.
type Address struct {
	Gate string `json:"gate,omitempty"`
	Node string `json:"node"`
}

// Local returns the address of a node in the local network.
func Local(node string) Address {
	return Address{Node: node}
}

// IsGated reports whether the address goes through a gate.
func (a Address) IsGated() bool {
	return a.Gate != ""
}

func (a Address) String() string {
	if a.Gate == "" {
		return a.Node
	}
	return a.Gate + ":" + a.Node
}

// MarshalJSON encodes a local address as a bare string.
func (a Address) MarshalJSON() ([]byte, error) {
	if a.Gate == "" {
		return json.Marshal(a.Node)
	}
	type plain Address
	return json.Marshal(plain(a))
}

// UnmarshalJSON accepts a bare node name or a {gate, node} object.
func (a *Address) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errInvalidAddress
	}
	switch b[0] {
	case '"':
		var node string
		if err := json.Unmarshal(b, &node); err != nil {
			return err
		}
		*a = Address{Node: node}
		return nil
	case '{':
		type plain Address
		var p plain
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		*a = Address(p)
		return nil
	default:
		return errInvalidAddress
	}
}

// Selector designates a set of addresses. It is the normalized form of a bare
// name, the wildcard, a {gate, node} pair whose fields may be names, the
// wildcard or lists, and of lists of all of the above.
type Selector []Address

// Node selects local nodes by name.
func Node(names ...string) Selector {
	sel := make(Selector, 0, len(names))
	for _, name := range names {
		sel = append(sel, Address{Node: name})
	}
	return sel
}

// All selects every local node.
func All() Selector {
	return Node(Wildcard)
}

// Via selects nodes behind a gate. The gate may be the wildcard.
func Via(gate string, nodes ...string) Selector {
	return Cross([]string{gate}, nodes)
}

// Cross selects every (gate, node) combination.
func Cross(gates, nodes []string) Selector {
	sel := make(Selector, 0, len(gates)*len(nodes))
	for _, gate := range gates {
		for _, node := range nodes {
			sel = append(sel, Address{Gate: gate, Node: node})
		}
	}
	return sel
}

// Join concatenates selectors.
func Join(selectors ...Selector) Selector {
	var sel Selector
	for _, s := range selectors {
		sel = append(sel, s...)
	}
	return sel
}

// IsGated reports whether any address of the selector goes through a gate.
func (s Selector) IsGated() bool {
	for _, addr := range s {
		if addr.IsGated() {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts a single address, or an array of addresses. Object
// fields may themselves be arrays, expanding to their cross product.
func (s *Selector) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errInvalidAddress
	}

	if string(b) == "null" {
		*s = nil
		return nil
	}

	switch b[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		var sel Selector
		for _, item := range items {
			var sub Selector
			if err := sub.UnmarshalJSON(item); err != nil {
				return err
			}
			sel = append(sel, sub...)
		}
		*s = sel
		return nil
	case '"':
		var node string
		if err := json.Unmarshal(b, &node); err != nil {
			return err
		}
		*s = Node(node)
		return nil
	case '{':
		var obj struct {
			Gate json.RawMessage `json:"gate"`
			Node json.RawMessage `json:"node"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		nodes, err := namesOf(obj.Node)
		if err != nil {
			return err
		}
		if len(obj.Gate) == 0 || string(obj.Gate) == "null" {
			*s = Node(nodes...)
			return nil
		}
		gates, err := namesOf(obj.Gate)
		if err != nil {
			return err
		}
		*s = Cross(gates, nodes)
		return nil
	default:
		return errInvalidAddress
	}
}

func namesOf(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errInvalidAddress
	}
	if raw[0] == '[' {
		var names []string
		err := json.Unmarshal(raw, &names)
		return names, err
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, err
	}
	return []string{name}, nil
}
