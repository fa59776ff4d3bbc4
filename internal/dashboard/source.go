package dashboard

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/entitycache"
	"tecky-admin/internal/logger"
	"tecky-admin/internal/push"
)

// Transport is the push connection screens subscribe to. *push.Client
// implements it.
type Transport interface {
	Subscribe(h push.Handlers) (unsubscribe func())
}

// topicSource adapts one collection's push topics to the cache's typed
// handlers. Every tracked collection is keyed by a string id.
type topicSource[E any] struct {
	t      Transport
	topics domain.Topics
	log    *zap.Logger
}

func (s topicSource[E]) SubscribeTransport(h entitycache.Handlers[string, E]) (unsubscribe func()) {
	entity := func(topic string, fn func(E)) func(json.RawMessage) {
		return func(data json.RawMessage) {
			var e E
			if err := json.Unmarshal(data, &e); err != nil {
				s.log.Warn("bad push payload", logger.Event(topic), logger.Err(err))
				return
			}
			fn(e)
		}
	}
	return s.t.Subscribe(push.Handlers{
		s.topics.Created: entity(s.topics.Created, h.Created),
		s.topics.Updated: entity(s.topics.Updated, h.Updated),
		s.topics.Deleted: func(data json.RawMessage) {
			ts, ok := decodeTombstone(data)
			if !ok {
				s.log.Warn("bad push payload", logger.Event(s.topics.Deleted))
				return
			}
			h.Deleted(ts.ID, ts.Version)
		},
	})
}

// decodeTombstone accepts {"id": ..., "version": ...} or a bare id string.
func decodeTombstone(data json.RawMessage) (domain.Tombstone, bool) {
	var ts domain.Tombstone
	if err := json.Unmarshal(data, &ts); err == nil && strings.TrimSpace(ts.ID) != "" {
		return ts, true
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil && strings.TrimSpace(id) != "" {
		return domain.Tombstone{ID: id}, true
	}
	return domain.Tombstone{}, false
}
