// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/logger"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// EmailAction sends an email, or logs it when no SMTP host is configured.
// The log-only mode keeps workflows runnable in development without mail
// infrastructure.
//
// Config:
//
//	to:        recipient address (required)
//	subject:   message subject
//	body:      message body
//	smtp_host: SMTP server host; log-only when empty
//	smtp_port: SMTP server port (default 25)
//	from:      sender address (default flowstate@localhost)
type EmailAction struct {
	// send is swapped in tests.
	send func(addr, from string, to []string, msg []byte) error
}

// NewEmailAction creates an EmailAction using net/smtp for delivery.
func NewEmailAction() *EmailAction {
	return &EmailAction{
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Name implements action.Action.
func (*EmailAction) Name() string { return "email" }

// Description implements action.Action.
func (*EmailAction) Description() string { return "sends an email notification" }

// CanExecute implements action.Action.
func (*EmailAction) CanExecute(_ context.Context, wfCtx workflow.Context) bool {
	return configString(wfCtx, "to") != ""
}

// Execute implements action.Action.
func (a *EmailAction) Execute(_ context.Context, wfCtx workflow.Context) workflow.ActionResult {
	to := configString(wfCtx, "to")
	if to == "" {
		return workflow.Failure("email requires a to config value")
	}
	subject := configString(wfCtx, "subject")
	body := configString(wfCtx, "body")

	host := configString(wfCtx, "smtp_host")
	if host == "" {
		logger.Infow("email (log-only, no smtp_host configured)",
			"workflow_id", wfCtx.WorkflowID(),
			"to", to,
			"subject", subject,
		)
		return workflow.Success(map[string]any{"sent": true, "delivery": "log"})
	}

	port := 25
	if raw, ok := wfCtx.ConfigValue("smtp_port"); ok {
		if n, ok := toPort(raw); ok {
			port = n
		}
	}
	from := configString(wfCtx, "from")
	if from == "" {
		from = "flowstate@localhost"
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", host, port)
	if err := a.send(addr, from, []string{to}, []byte(msg)); err != nil {
		return workflow.Failure(err.Error())
	}
	return workflow.Success(map[string]any{"sent": true, "delivery": "smtp"})
}

// ActionSettings implements action.Configurable.
func (*EmailAction) ActionSettings() action.Settings {
	return action.Settings{
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		Backoff:       action.DefaultBackoff(),
	}
}

func toPort(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, t > 0
	case float64:
		return int(t), t > 0 && t == float64(int(t))
	default:
		return 0, false
	}
}
