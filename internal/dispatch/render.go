package dispatch

import (
	"fmt"
	"strings"

	"taskping/internal/model"
)

// render turns a stored notification into the subject/body pair handed
// to a channel. The message text itself was fixed at creation time;
// rendering only adds the envelope and task context around it.
func render(n model.Notification, t *model.Task) (subject, body string) {
	switch n.Kind {
	case model.KindReminder:
		subject = "Reminder: " + t.Title
	case model.KindOverdue:
		subject = "Overdue: " + t.Title
	case model.KindMention:
		subject = "You were mentioned on: " + t.Title
	case model.KindComment:
		subject = "New comment on: " + t.Title
	default:
		subject = "Update on: " + t.Title
	}

	var b strings.Builder
	b.WriteString(n.Message)
	if t.Deadline != nil {
		fmt.Fprintf(&b, "\n\nDeadline: %s", t.Deadline.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "\n\n%s", t.Description)
	}
	return subject, b.String()
}
