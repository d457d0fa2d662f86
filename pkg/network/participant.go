package network

import (
	"errors"
	"sync"
)

// ErrDetached is returned when a participant raises a signal while no
// network is subscribed to it.
var ErrDetached = errors.New("participant is not connected to a network")

// ListenRequest asks the network to register Handler for messages sent by the
// sources in To on any of Topics. For unlisten requests every field is an
// optional filter.
type ListenRequest struct {
	To      Selector
	Topics  []string
	Handler Handler
}

// SendRequest asks the network to dispatch Data on Topic to the listeners in
// To. From names the originating node and is only meaningful for gates,
// which relay traffic on behalf of nodes of another network.
type SendRequest struct {
	From    string
	To      Selector
	Topic   string
	Data    any
	Options []CallOption
}

// Participant is what a Router connects under a name. The Router subscribes
// to its three signals and re-raises them with the connecting name as source.
// Each subscription call returns a function cancelling it.
type Participant interface {
	OnListen(fn func(ListenRequest) error) (cancel func())
	OnSend(fn func(SendRequest) error) (cancel func())
	OnUnlisten(fn func(ListenRequest) error) (cancel func())
}

// Gate is a participant bridging into another network. Instead of running
// handlers, the Router hands every call addressed through the gate to
// Transfer.
type Gate interface {
	Participant
	Transfer(call *Call)
}

// Signals is a Participant implementation relaying raised requests to every
// subscriber. The zero value is ready to use.
type Signals struct {
	mu       sync.Mutex
	seq      uint64
	listen   map[uint64]func(ListenRequest) error
	send     map[uint64]func(SendRequest) error
	unlisten map[uint64]func(ListenRequest) error
}

func subscribe[T any](s *Signals, table *map[uint64]func(T) error, fn func(T) error) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if *table == nil {
		*table = make(map[uint64]func(T) error)
	}
	s.seq++
	id := s.seq
	(*table)[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(*table, id)
			s.mu.Unlock()
		})
	}
}

func raise[T any](s *Signals, table *map[uint64]func(T) error, req T) error {
	s.mu.Lock()
	subscribers := make([]func(T) error, 0, len(*table))
	for _, fn := range *table {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	if len(subscribers) == 0 {
		return ErrDetached
	}

	var errs []error
	for _, fn := range subscribers {
		if err := fn(req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Signals) OnListen(fn func(ListenRequest) error) func() {
	return subscribe(s, &s.listen, fn)
}

func (s *Signals) OnSend(fn func(SendRequest) error) func() {
	return subscribe(s, &s.send, fn)
}

func (s *Signals) OnUnlisten(fn func(ListenRequest) error) func() {
	return subscribe(s, &s.unlisten, fn)
}

// RaiseListen relays a listen request to the subscribed networks.
func (s *Signals) RaiseListen(req ListenRequest) error {
	return raise(s, &s.listen, req)
}

// RaiseSend relays a send request to the subscribed networks.
func (s *Signals) RaiseSend(req SendRequest) error {
	return raise(s, &s.send, req)
}

// RaiseUnlisten relays an unlisten request to the subscribed networks.
func (s *Signals) RaiseUnlisten(req ListenRequest) error {
	return raise(s, &s.unlisten, req)
}
