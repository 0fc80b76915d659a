package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/config"
	"github.com/spec-kit/dispatch-engine/internal/domain"
	"github.com/spec-kit/dispatch-engine/internal/events"
	"github.com/spec-kit/dispatch-engine/internal/ledger"
)

const webhookTimeout = 5 * time.Second

// NotificationService delivers the notifications decision events carry.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventDecisionCompleted, n.handleDecisionCompleted)
	n.dispatcher.Subscribe(events.EventDecisionNeedsHuman, n.handleDecisionNeedsHuman)
}

func (n *NotificationService) handleDecisionCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DecisionPayload)
	if !ok {
		return nil
	}
	n.logger.Info("DecisionCompleted",
		zap.String("request_id", event.RequestID),
		zap.String("engine", string(payload.Engine)),
		zap.Int("notifications", len(payload.Notifications)))
	for _, req := range payload.Notifications {
		n.notify(ctx, event, req)
	}
	return nil
}

func (n *NotificationService) handleDecisionNeedsHuman(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DecisionPayload)
	if !ok {
		return nil
	}
	n.logger.Info("DecisionNeedsHuman",
		zap.String("request_id", event.RequestID),
		zap.String("domain", string(payload.Domain)),
		zap.String("reason", payload.Reason))
	n.sendWebhookNotification(ctx, event, fmt.Sprintf("needs_human %s: %s", payload.Domain, payload.Reason))
	return nil
}

func (n *NotificationService) notify(ctx context.Context, event events.Event, req domain.NotificationRequest) {
	switch req.Channel {
	case "sms":
		n.sendSMSNotificationStub(ctx, event, req)
	case "email":
		n.sendEmailNotificationStub(ctx, event, req)
	default:
		n.sendWebhookNotification(ctx, event, req.Template)
	}
}

func (n *NotificationService) sendSMSNotificationStub(ctx context.Context, event events.Event, req domain.NotificationRequest) {
	if strings.TrimSpace(n.cfg.SMSFrom) == "" {
		return
	}
	n.logger.Debug("sendSMSNotificationStub",
		zap.String("from", n.cfg.SMSFrom),
		zap.String("to", ledger.MaskPhone(req.Recipient)),
		zap.String("template", req.Template),
		zap.String("request_id", event.RequestID))
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, req domain.NotificationRequest) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", ledger.MaskEmail(req.Recipient)),
		zap.String("template", req.Template),
		zap.String("request_id", event.RequestID))
}

// sendWebhookNotification posts a short, contact-free line to the
// configured incoming webhook.
func (n *NotificationService) sendWebhookNotification(ctx context.Context, event events.Event, text string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	msg := &slack.WebhookMessage{Text: fmt.Sprintf("%s [request %s]", text, event.RequestID)}
	if err := slack.PostWebhookContext(ctx, n.cfg.WebhookURL, msg); err != nil {
		n.logger.Warn("webhook notification failed",
			zap.String("request_id", event.RequestID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return
	}
	n.logger.Debug("sendWebhookNotification",
		zap.String("text", text),
		zap.String("request_id", event.RequestID),
		zap.String("event_type", string(event.Type)))
}
