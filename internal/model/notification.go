package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTemplate identifies the content variant carried by a
// Notification. AccountActivation and PasswordReset are delegated to the
// (external) authentication subsystem and only ever constructed by it; they
// are modeled here so NotificationContent stays a closed tagged union.
type NotificationTemplate string

const (
	TemplateTrackerResourceChanges NotificationTemplate = "tracker_resource_changes"
	TemplateTrackerContentChanges  NotificationTemplate = "tracker_content_changes"
	TemplateAccountActivation      NotificationTemplate = "account_activation"
	TemplatePasswordReset          NotificationTemplate = "password_reset"
)

// NotificationContent is a tagged variant: exactly one of the pointer
// fields matching Template is populated.
type NotificationContent struct {
	Template NotificationTemplate

	TrackerResourceChanges *TrackerResourceChangesContent
	TrackerContentChanges  *TrackerContentChangesContent
	AccountActivation      *AccountActivationContent
	PasswordReset          *PasswordResetContent
}

// TrackerResourceChangesContent reports either the count of changed
// resources or an error message from a failed fetch.
type TrackerResourceChangesContent struct {
	TrackerName string
	Count       *int
	Err         *string
}

// TrackerContentChangesContent reports either the new content body or an
// error message from a failed fetch.
type TrackerContentChangesContent struct {
	TrackerName string
	Body        *string
	Err         *string
}

// AccountActivationContent and PasswordResetContent are delegated variants;
// only the referenced user id is carried here, the rest of the email is
// rendered by the (external) notification templating layer.
type AccountActivationContent struct{ UserID int64 }
type PasswordResetContent struct{ UserID int64 }

// Notification is a pending user-visible event awaiting delivery by an
// external email transport.
type Notification struct {
	ID          uuid.UUID
	Destination string // user id or email address
	Content     NotificationContent
	ScheduledAt time.Time
}

// DedupKey returns a deterministic key used to suppress duplicate
// notifications. For tracker templates the key is template, destination and
// tracker name; the revision and the body, count or error are not part of
// it, so while one such notification is pending, any further one of the
// same template for the same tracker and destination is suppressed.
func (n Notification) DedupKey() string {
	switch n.Content.Template {
	case TemplateTrackerResourceChanges:
		c := n.Content.TrackerResourceChanges
		return string(TemplateTrackerResourceChanges) + "|" + n.Destination + "|" + c.TrackerName
	case TemplateTrackerContentChanges:
		c := n.Content.TrackerContentChanges
		return string(TemplateTrackerContentChanges) + "|" + n.Destination + "|" + c.TrackerName
	default:
		return n.ID.String()
	}
}
