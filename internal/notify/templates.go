package notify

import (
	"bytes"
	"fmt"
	"net/url"
	"text/template"
)

// Invitation is the data rendered into every client email.
type Invitation struct {
	ClientName string
	Date       string
	Time       string
	Location   string
	DaysUntil  int
	Token      string
	BaseURL    string
}

func (i Invitation) link(path string) string {
	return i.BaseURL + path + "?token=" + url.QueryEscape(i.Token)
}

// ViewLink opens the landing page where the client confirms or proposes a
// different date.
func (i Invitation) ViewLink() string { return i.link("/appointments/invitation") }

var (
	invitationTmpl = template.Must(template.New("invitation").Parse(
		`Hello {{.ClientName}},

your advisor has proposed a meeting on {{.Date}} at {{.Time}}{{if .Location}} ({{.Location}}){{end}}.

Please confirm the appointment or suggest another date here:
{{.ViewLink}}
`))

	rescheduleTmpl = template.Must(template.New("reschedule").Parse(
		`Hello {{.ClientName}},

your appointment has been moved to {{.Date}} at {{.Time}}{{if .Location}} ({{.Location}}){{end}}.
Links from earlier emails are no longer valid.

Please confirm the new date or suggest another one here:
{{.ViewLink}}
`))

	reminderTmpl = template.Must(template.New("reminder").Parse(
		`Hello {{.ClientName}},

this is a reminder of your appointment in {{.DaysUntil}} day{{if ne .DaysUntil 1}}s{{end}}: {{.Date}} at {{.Time}}{{if .Location}} ({{.Location}}){{end}}.

Details: {{.ViewLink}}
`))
)

func render(t *template.Template, data Invitation) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func InvitationMessage(to string, data Invitation) (Message, error) {
	body, err := render(invitationTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Appointment proposal for " + data.Date, Body: body}, nil
}

func RescheduleMessage(to string, data Invitation) (Message, error) {
	body, err := render(rescheduleTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Your appointment was rescheduled to " + data.Date, Body: body}, nil
}

func ReminderMessage(to string, data Invitation) (Message, error) {
	body, err := render(reminderTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("Reminder: appointment on %s", data.Date), Body: body}, nil
}
