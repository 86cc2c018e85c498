// Package notify carries domain events from the session core to whoever renders them.
// The core only knows the Observer interface; the websocket hub, the unix socket
// notifier and test recorders are plugged in from the outside.
package notify

import (
	"sync"

	"github.com/moyoez/localsend-session/types"
)

// Observer receives domain events. Implementations must not block for long.
type Observer interface {
	Notify(notification *types.Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(notification *types.Notification)

func (f ObserverFunc) Notify(notification *types.Notification) {
	f(notification)
}

// Nop drops every event.
var Nop Observer = ObserverFunc(func(*types.Notification) {})

// Dispatcher fans events out to a dynamic set of observers.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewDispatcher(observers ...Observer) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range observers {
		d.Add(o)
	}
	return d
}

func (d *Dispatcher) Add(o Observer) {
	if o == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

func (d *Dispatcher) Notify(notification *types.Notification) {
	if notification == nil {
		return
	}
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()
	for _, o := range observers {
		o.Notify(notification)
	}
}
