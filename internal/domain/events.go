package domain

// Push event names, one set per tracked collection.
const (
	EventJobCreated = "jobCreated"
	EventJobUpdated = "jobUpdated"
	EventJobDeleted = "jobDeleted"

	EventApplicationCreated = "jobApplicationCreated"
	EventApplicationUpdated = "jobApplicationUpdated"
	EventApplicationDeleted = "jobApplicationDeleted"

	EventContactCreated = "contactCreated"
	EventContactUpdated = "contactUpdated"
	EventContactDeleted = "contactDeleted"
)

// Topics names the created/updated/deleted events of one collection.
type Topics struct {
	Created string
	Updated string
	Deleted string
}

var (
	JobTopics         = Topics{EventJobCreated, EventJobUpdated, EventJobDeleted}
	ApplicationTopics = Topics{EventApplicationCreated, EventApplicationUpdated, EventApplicationDeleted}
	ContactTopics     = Topics{EventContactCreated, EventContactUpdated, EventContactDeleted}
)

// Tombstone is the payload of a deleted event.
type Tombstone struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}
