package rabbitmq

// Topology: two topic exchanges.
//
// inboundExchange carries the upstream domain events this service ingests
// (user.followed, comment.created, mention.created, like.created,
// PostCreated, LiveStreamStarted, StoryPosted, AnnouncementMade). Producers
// outside this service publish with a routing key matching the event's
// eventType; the consumer queue binds "#" so it receives every inbound
// event type without needing a binding per type.
//
// outboundExchange carries the events this service announces:
// notification.event.processed, under the routing key model.RoutingKeyFor
// returns. No notification.delivered|sent|failed status event is published;
// model.NotificationStatusEvent has no producer. This service only publishes
// to it; any queue a downstream consumer binds there is out of this
// service's concern.
const (
	outboundExchange = "notification.events.exchange"

	exchangeKind  = "topic"
	inboundBindRK = "#"
)
