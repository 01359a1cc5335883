package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/pkg/jobs"
)

// Notification template names, also used as metric labels.
const (
	TemplateWelcome  = "welcome"
	TemplateAccepted = "accepted"
)

var errUnknownTemplate = errors.New("unknown notification template")

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// EmailPayload is the job payload for one outbound email.
type EmailPayload struct {
	Template     string
	To           string
	FirstName    string
	ReferralCode string
	Position     int
	PortalURL    string
}

// NotificationConfig configures the sender.
type NotificationConfig struct {
	Enabled   bool
	Sender    string
	PortalURL string
}

// NotificationService queues and delivers transactional email through SES.
type NotificationService struct {
	client  sesAPI
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
	cfg     NotificationConfig
}

// NewSESClient loads the default AWS credential chain for region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// NewNotificationService constructs a NotificationService. The queue may be attached later with SetQueue.
func NewNotificationService(client sesAPI, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{client: client, metrics: metrics, logger: logger, cfg: cfg}
}

// SetQueue attaches the queue used by Welcome and Accepted.
func (s *NotificationService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Welcome queues the intake confirmation email.
func (s *NotificationService) Welcome(applicant *models.Applicant) {
	s.enqueue(TemplateWelcome, applicant)
}

// Accepted queues the acceptance email.
func (s *NotificationService) Accepted(applicant *models.Applicant) {
	s.enqueue(TemplateAccepted, applicant)
}

func (s *NotificationService) enqueue(name string, applicant *models.Applicant) {
	if s == nil || !s.cfg.Enabled || s.queue == nil || applicant == nil {
		return
	}
	payload := EmailPayload{
		Template:     name,
		To:           applicant.Email,
		FirstName:    applicant.FirstName,
		ReferralCode: applicant.ReferralCode,
		Position:     applicant.WaitlistPosition,
		PortalURL:    s.cfg.PortalURL,
	}
	job := jobs.Job{ID: uuid.NewString(), Type: name, Payload: payload}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("notification not queued", zap.String("template", name), zap.String("applicant_id", applicant.ID), zap.Error(err))
		s.metrics.RecordNotification(name, err)
	}
}

// Handle delivers one queued email. It is the jobs.Handler for the notification queue.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(EmailPayload)
	if !ok {
		return jobs.Permanent(fmt.Errorf("notification job %s: unexpected payload %T", job.ID, job.Payload))
	}
	subject, body, err := renderEmail(payload)
	if err != nil {
		return jobs.Permanent(err)
	}
	_, err = s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{payload.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.cfg.Sender),
	})
	if err != nil {
		return fmt.Errorf("send %s email: %w", payload.Template, err)
	}
	s.metrics.RecordNotification(payload.Template, nil)
	s.logger.Info("notification sent", zap.String("template", payload.Template), zap.String("job_id", job.ID))
	return nil
}

// OnFailure records a job that exhausted its retries.
func (s *NotificationService) OnFailure(job jobs.Job, err error) {
	if payload, ok := job.Payload.(EmailPayload); ok {
		s.metrics.RecordNotification(payload.Template, err)
		return
	}
	s.metrics.RecordNotification(job.Type, err)
}

var emailTemplates = map[string]struct {
	subject string
	body    *template.Template
}{
	TemplateWelcome: {
		subject: "You're on the list",
		body: template.Must(template.New(TemplateWelcome).Parse(
			`<p>Hi {{.FirstName}},</p><p>You're #{{.Position}} on the waitlist. Share your code <strong>{{.ReferralCode}}</strong> to move up.</p><p><a href="{{.PortalURL}}">Open your portal</a></p>`)),
	},
	TemplateAccepted: {
		subject: "Welcome to the ambassador program",
		body: template.Must(template.New(TemplateAccepted).Parse(
			`<p>Hi {{.FirstName}},</p><p>You're in. Brand opportunities are now open to you.</p><p><a href="{{.PortalURL}}">See opportunities</a></p>`)),
	},
}

func renderEmail(payload EmailPayload) (string, string, error) {
	tpl, ok := emailTemplates[payload.Template]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", errUnknownTemplate, payload.Template)
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", payload.Template, err)
	}
	return tpl.subject, buf.String(), nil
}
