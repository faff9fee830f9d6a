package leads

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// emails a plain-text run summary to the operator
func SendRunSummary(ctx context.Context, config SmtpConfig, to string, run Run) error {
	ctx, span := tracer.Start(ctx, "SendRunSummary")
	defer span.End()

	qualified := 0
	for _, lead := range run.Leads {
		if lead.Qualified {
			qualified++
		}
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Discovery run %s finished.\n\n", run.ID)
	fmt.Fprintf(&body, "Query: %s\nLocation: %s\n", run.Query, run.Location)
	fmt.Fprintf(&body, "Listings collected: %d\nQualified leads: %d\n\n", len(run.Leads), qualified)
	for _, lead := range run.Leads {
		if !lead.Qualified {
			continue
		}
		score := "no website"
		if lead.Evaluation != nil {
			score = fmt.Sprintf("score %d", lead.Evaluation.Score)
		}
		fmt.Fprintf(&body, "- %s (%s)\n", lead.Listing.Name, score)
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Leadscout <%s>", config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = fmt.Sprintf("Leadscout run summary: %s in %s", run.Query, run.Location)
	mail.Text = []byte(body.String())

	addr := fmt.Sprintf("%s:%d", config.Server, config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", config.EmailAddress, config.Password, config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send summary email")
		return err
	}
	return nil
}
