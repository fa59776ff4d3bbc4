package entitycache

// Handlers are the callbacks a push transport invokes for one collection.
type Handlers[K comparable, E any] struct {
	Created func(e E)
	Updated func(e E)
	Deleted func(id K, version int64)
}

// PushSource delivers push events for one collection in delivery order.
type PushSource[K comparable, E any] interface {
	SubscribeTransport(h Handlers[K, E]) (unsubscribe func())
}

// Bind routes src's events into the synchronizer until the returned
// function is called.
func (s *Synchronizer[K, E]) Bind(src PushSource[K, E]) (unbind func()) {
	return src.SubscribeTransport(Handlers[K, E]{
		Created: func(e E) { s.ApplyEvent(Event[K, E]{Kind: Created, Entity: e}) },
		Updated: func(e E) { s.ApplyEvent(Event[K, E]{Kind: Updated, Entity: e}) },
		Deleted: func(id K, version int64) {
			s.ApplyEvent(Event[K, E]{Kind: Deleted, ID: id, Version: version})
		},
	})
}
