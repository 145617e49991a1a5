package enums

import "strings"

// NotificationKind tags what a notification is about. New kinds ship without a
// schema change, so this stays an open string rather than a closed enum; the
// constants below only name the kinds the platform emits today.
type NotificationKind string

const (
	NotificationKindFollow        NotificationKind = "follow"
	NotificationKindMessage       NotificationKind = "message"
	NotificationKindSystem        NotificationKind = "system"
	NotificationKindGroupInvite   NotificationKind = "group_invite"
	NotificationKindGroupPost     NotificationKind = "group_post"
	NotificationKindPageUpdate    NotificationKind = "page_update"
	NotificationKindEventReminder NotificationKind = "event_reminder"
	NotificationKindSecurityAlert NotificationKind = "security_alert"
)

// NormalizeNotificationKind trims and lowercases a raw kind tag.
func NormalizeNotificationKind(value string) NotificationKind {
	return NotificationKind(strings.ToLower(strings.TrimSpace(value)))
}
