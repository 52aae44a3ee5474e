package webhook

import "slices"

// Events lists the event names a webhook subscription may use.
var Events = []string{
	"envelopeSent", "envelopeCompleted", "envelopeExpired", "envelopeDeclined",
	"envelopeDisapproved", "envelopeCancelled", "envelopeDeleted",
	"recipientSent", "recipientDelivered", "recipientNonDelivered",
	"recipientAuthFailed", "recipientSigned", "recipientDownloaded",
	"recipientDeclined", "recipientDisapproved", "recipientCanceled",
}

// IsEvent reports whether name is a known event.
func IsEvent(name string) bool {
	return slices.Contains(Events, name)
}
