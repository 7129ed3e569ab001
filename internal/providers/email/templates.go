package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

const TemplateQuoteSent = "quote_sent"

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var defaultSubjects = map[string]string{
	TemplateQuoteSent: "Your quote is ready",
}

func render(name string, data TemplateData) (string, string, error) {
	tmpl := templates.Lookup(name + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Values); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}

	subject := data.Subject
	if subject == "" {
		subject = defaultSubjects[name]
	}
	return subject, body.String(), nil
}
