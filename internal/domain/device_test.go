package domain

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	offlineAfter := 5 * time.Minute

	cases := []struct {
		name     string
		lastPing *time.Time
		want     string
	}{
		{"never pinged", nil, StatusNeverConnected},
		{"just pinged", timePtr(now), StatusOnline},
		{"inside window", timePtr(now.Add(-4 * time.Minute)), StatusOnline},
		{"exactly at threshold", timePtr(now.Add(-5 * time.Minute)), StatusOffline},
		{"long silent", timePtr(now.Add(-3 * time.Hour)), StatusOffline},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.lastPing, now, offlineAfter); got != tc.want {
				t.Fatalf("DeriveStatus(%v)=%q want %q", tc.lastPing, got, tc.want)
			}
		})
	}
}

func TestDeviceViewCarriesDerivedStatus(t *testing.T) {
	now := time.Now()
	lastPing := now.Add(-10 * time.Minute)
	d := Device{Hash: "abc123", LastPing: &lastPing}

	view := d.View(now, 5*time.Minute)
	if view.Status != StatusOffline {
		t.Fatalf("expected offline view, got %q", view.Status)
	}
	if view.Hash != d.Hash {
		t.Fatalf("view lost device fields: %+v", view)
	}
}

func TestDeviceDisplayName(t *testing.T) {
	name := "Garage Pi"
	named := Device{Hash: "aabbccddeeff0011", DeviceName: &name}
	if got := named.DisplayName(); got != "Garage Pi" {
		t.Fatalf("expected explicit name, got %q", got)
	}

	unnamed := Device{Hash: "aabbccddeeff0011"}
	if got := unnamed.DisplayName(); got != "Device aabbccdd" {
		t.Fatalf("expected hash prefix fallback, got %q", got)
	}
}

func timePtr(v time.Time) *time.Time { return &v }
