package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/imoklv/imok/internal/domain"
)

func TestVerificationEmailCarriesLinkAndTTL(t *testing.T) {
	subject, body := VerificationEmail("https://imok.lv/verify/tok123", 24*time.Hour)
	if subject == "" {
		t.Fatal("expected non-empty subject")
	}
	if !strings.Contains(body, "https://imok.lv/verify/tok123") {
		t.Fatalf("body must contain the verify link: %s", body)
	}
	if !strings.Contains(body, "24 hours") {
		t.Fatalf("body must state the link TTL: %s", body)
	}
}

func TestOfflineAlertDetails(t *testing.T) {
	name := "Garage Pi"
	lastPing := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := lastPing.Add(90 * time.Minute)
	ip := "203.0.113.7"
	d := domain.Device{
		Hash:       "aabbccddeeff",
		DeviceName: &name,
		LastPing:   &lastPing,
		LastIP:     &ip,
		PingCount:  42,
	}

	subject, body := OfflineAlert(d, now, "https://imok.lv/?device=aabbccddeeff")
	if !strings.Contains(subject, "Garage Pi") {
		t.Fatalf("subject must name the device: %s", subject)
	}
	for _, want := range []string{
		"2026-03-01 12:00:00 UTC",
		"1 hours, 30 minutes",
		"203.0.113.7",
		"42",
		"https://imok.lv/?device=aabbccddeeff",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q: %s", want, body)
		}
	}
}

func TestOfflineAlertEscapesDeviceName(t *testing.T) {
	name := `<script>alert("x")</script>`
	lastPing := time.Now().Add(-10 * time.Minute)
	d := domain.Device{Hash: "aabbccdd", DeviceName: &name, LastPing: &lastPing}

	_, body := OfflineAlert(d, time.Now(), "https://imok.lv")
	if strings.Contains(body, "<script>") {
		t.Fatal("device name must be HTML-escaped")
	}
}

func TestFormatDowntime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{7 * time.Minute, "7 minutes"},
		{time.Hour + 5*time.Minute, "1 hours, 5 minutes"},
		{26*time.Hour + 59*time.Minute, "26 hours, 59 minutes"},
		{-time.Minute, "0 minutes"},
	}
	for _, tc := range cases {
		if got := formatDowntime(tc.in); got != tc.want {
			t.Fatalf("formatDowntime(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}
