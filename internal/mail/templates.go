package mail

import (
	"fmt"
	"html"
	"time"

	"github.com/imoklv/imok/internal/domain"
)

// VerificationEmail builds the message sent after device registration.
// The link carries the single-use token; the TTL in the copy matches
// the enforced expiry.
func VerificationEmail(verifyURL string, ttl time.Duration) (subject, body string) {
	subject = "Confirm your ImOK notifications"
	hours := int(ttl.Hours())
	body = fmt.Sprintf(`<html><body>
<h2>Almost there</h2>
<p>A device was registered with this email address for offline alerts.</p>
<p>Click the link below to confirm you want to receive notifications when it stops responding:</p>
<p><a href="%s">%s</a></p>
<p>The link expires in %d hours. If you did not register a device, you can ignore this email.</p>
</body></html>`, verifyURL, verifyURL, hours)
	return subject, body
}

// OfflineAlert builds the dead-man's-switch notification for a device
// that has gone silent.
func OfflineAlert(d domain.Device, now time.Time, manageURL string) (subject, body string) {
	name := html.EscapeString(d.DisplayName())
	subject = fmt.Sprintf("%s is offline", d.DisplayName())

	lastPing := "never"
	offlineFor := "unknown"
	if d.LastPing != nil {
		lastPing = d.LastPing.UTC().Format("2006-01-02 15:04:05 UTC")
		offlineFor = formatDowntime(now.Sub(*d.LastPing))
	}
	lastIP := "unknown"
	if d.LastIP != nil && *d.LastIP != "" {
		lastIP = html.EscapeString(*d.LastIP)
	}

	body = fmt.Sprintf(`<html><body>
<h2>%s has stopped responding</h2>
<p>Your device has not checked in and is now considered offline.</p>
<ul>
<li>Device: %s</li>
<li>Last ping: %s</li>
<li>Offline for: %s</li>
<li>Last IP: %s</li>
<li>Total pings: %d</li>
</ul>
<p>You will not be emailed about this device again for the next hour. As soon as it pings again the alerts reset.</p>
<p><a href="%s">Manage this device</a></p>
</body></html>`, name, name, lastPing, offlineFor, lastIP, d.PingCount, manageURL)
	return subject, body
}

func formatDowntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%d hours, %d minutes", hours, minutes)
	}
	return fmt.Sprintf("%d minutes", minutes)
}
