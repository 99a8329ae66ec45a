package notifier

import (
	"bytes"
	"embed"
	"strings"
	"text/template"
	"time"

	"github.com/good-yellow-bee/kafkawatch/internal/alerting"
	"github.com/good-yellow-bee/kafkawatch/internal/health"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Subject       string
	Severity      string
	SeverityColor string
	Reason        string
	Kind          string
	KindLabel     string
	Message       string
	Timestamp     string
	Duration      string
	Recovered     bool
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the color for a severity level.
func severityColor(severity health.Severity) string {
	switch severity {
	case health.SeverityCritical:
		return "#d32f2f" // red
	case health.SeverityWarning:
		return "#f57c00" // orange
	case health.SeverityOK:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// kindLabel returns the human label for a transition kind.
func kindLabel(kind alerting.Kind) string {
	switch kind {
	case alerting.KindNew:
		return "New problem"
	case alerting.KindEscalated:
		return "Problem escalated"
	case alerting.KindDegraded:
		return "Improved but still degraded"
	case alerting.KindReminder:
		return "Still ongoing"
	case alerting.KindRecovered:
		return "Recovered"
	default:
		return string(kind)
	}
}

// NotificationToTemplateData converts a notification to template data.
func NotificationToTemplateData(n *alerting.Notification) TemplateData {
	data := TemplateData{
		Subject:       n.Verdict.Subject,
		Severity:      string(n.Verdict.Severity),
		SeverityColor: severityColor(n.Verdict.Severity),
		Reason:        string(n.Verdict.Reason),
		Kind:          string(n.Kind),
		KindLabel:     kindLabel(n.Kind),
		Message:       n.Verdict.Message,
		Timestamp:     n.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Recovered:     n.Kind == alerting.KindRecovered,
	}

	if d := n.Duration(); d > 0 && n.Kind != alerting.KindNew {
		data.Duration = d.Round(time.Second).String()
	}

	return data
}
