package enums

import (
	"fmt"
	"strings"
)

// WebhookEventStatus records the outcome of a received webhook payload.
type WebhookEventStatus string

const (
	WebhookEventStatusReceived  WebhookEventStatus = "received"
	WebhookEventStatusRejected  WebhookEventStatus = "rejected"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusError     WebhookEventStatus = "error"
)

var validWebhookEventStatuses = []WebhookEventStatus{
	WebhookEventStatusReceived,
	WebhookEventStatusRejected,
	WebhookEventStatusProcessed,
	WebhookEventStatusError,
}

// String implements fmt.Stringer.
func (s WebhookEventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s WebhookEventStatus) IsValid() bool {
	for _, candidate := range validWebhookEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWebhookEventStatus converts raw input into a WebhookEventStatus.
func ParseWebhookEventStatus(value string) (WebhookEventStatus, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validWebhookEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event status %q", value)
}
