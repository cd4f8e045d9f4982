package enums

// NotificationChannel identifies the transport a notification went out on.
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
)

// NotificationDeliveryStatus records the outcome of one best-effort send.
type NotificationDeliveryStatus string

const (
	NotificationDeliverySent    NotificationDeliveryStatus = "sent"
	NotificationDeliveryFailed  NotificationDeliveryStatus = "failed"
	NotificationDeliverySkipped NotificationDeliveryStatus = "skipped"
)
