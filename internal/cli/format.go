package cli

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

// FormatValue formats an optional indicator value; absent values print as n/a.
func FormatValue(v optional.Option[float64]) string {
	if v.IsNone() {
		return "n/a"
	}
	return FormatPrice(v.Unwrap())
}

// FormatOptionalRatio formats an optional fraction as a percentage.
func FormatOptionalRatio(v optional.Option[float64]) string {
	if v.IsNone() {
		return "n/a"
	}
	return utils.FormatRatio(v.Unwrap())
}

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if price >= 10 || price <= -10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatDate formats a date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(models.DateLayout)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
