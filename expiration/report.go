package expiration

import (
	"fmt"
	"strings"
	"time"
)

// Urgency tiers for the upcoming report.
const (
	urgentWithinDays = 7
	soonWithinDays   = 15
)

// UpcomingReport renders the contracts expiring within the window as a
// Telegram-ready message. Returns "" when nothing falls in the window.
func UpcomingReport(entries []Entry, days int) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPCOMING CONTRACT EXPIRATIONS\nWindow: next %d days\n", days)
	for _, e := range entries {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s%s\n", e.Name, urgencyTag(e.DaysLeft))
		if e.Type != "" {
			fmt.Fprintf(&b, "  Type: %s\n", e.Type)
		}
		fmt.Fprintf(&b, "  Expires: %s (%s)\n", formatDate(e.ExpiresAt), daysLeftPhrase(e.DaysLeft))
		if len(e.Parties) > 0 {
			fmt.Fprintf(&b, "  Parties: %s\n", strings.Join(e.Parties, ", "))
		}
	}
	return b.String()
}

// CriticalAlert renders the short-fuse alert sent by the daemon's daily
// check. Returns "" when no contract is inside the critical window.
func CriticalAlert(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("CONTRACT EXPIRATION ALERT\n")
	for _, e := range entries {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", e.Name)
		fmt.Fprintf(&b, "  Expires: %s (%s)\n", formatDate(e.ExpiresAt), daysLeftPhrase(e.DaysLeft))
	}
	b.WriteString("\nAction required: renew or close these contracts.")
	return b.String()
}

func urgencyTag(daysLeft int) string {
	switch {
	case daysLeft <= urgentWithinDays:
		return " [URGENT]"
	case daysLeft <= soonWithinDays:
		return " [SOON]"
	default:
		return ""
	}
}

func daysLeftPhrase(daysLeft int) string {
	switch daysLeft {
	case 0:
		return "expires today"
	case 1:
		return "expires tomorrow"
	default:
		return fmt.Sprintf("expires in %d days", daysLeft)
	}
}

func formatDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}
