package email

import (
	"context"

	"go.uber.org/zap"
)

// Provider delivers transactional mail. Delivery itself is a collaborator:
// callers treat failures as non-fatal.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data TemplateData) error
}

// TemplateData feeds an embedded template. Subject overrides the template default.
type TemplateData struct {
	Subject string
	Values  map[string]any
}

// NoOpProvider logs instead of sending. Used when SMTP is not configured.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Info("email suppressed", zap.Int("recipients", len(to)), zap.String("subject", subject))
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data TemplateData) error {
	if _, _, err := render(templateName, data); err != nil {
		return err
	}
	p.log.Info("email suppressed", zap.Int("recipients", len(to)), zap.String("template", templateName))
	return nil
}
