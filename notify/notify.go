// Package notify delivers alerts to operators. Telegram is the only
// implemented channel; the Notifier interface keeps the scan cycle channel
// agnostic.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aissential/contractwatch/analyze"
)

// Notifier sends a plain-text message to an alert channel.
type Notifier interface {
	// Name identifies the channel in logs.
	Name() string

	// Send delivers the message, returning a classified error on failure.
	Send(ctx context.Context, text string) error
}

// HighRiskAlert formats the alert message for a contract whose risk score
// reached the alert threshold.
func HighRiskAlert(name string, analysis *analyze.Analysis) string {
	var b strings.Builder
	b.WriteString("HIGH RISK CONTRACT ALERT\n\n")
	fmt.Fprintf(&b, "Contract: %s\n", name)
	fmt.Fprintf(&b, "Risk Score: %d/100\n\n", analysis.RiskScore)

	if len(analysis.Risks) > 0 {
		b.WriteString("Identified Risks:\n")
		for _, risk := range analysis.Risks {
			fmt.Fprintf(&b, "- %s\n", risk)
		}
	}
	if len(analysis.MissingClauses) > 0 {
		b.WriteString("\nMissing Clauses:\n")
		for _, clause := range analysis.MissingClauses {
			fmt.Fprintf(&b, "- %s\n", clause)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// EscalationAlert formats the message sent when consecutive scan cycles keep
// failing and operator attention is needed.
func EscalationAlert(failures int, lastErr error) string {
	return fmt.Sprintf(
		"CONTRACTWATCH DEGRADED\n\n%d consecutive scan cycles have failed.\nLast error: %v\n\nDocuments may be going unreviewed.",
		failures, lastErr)
}
