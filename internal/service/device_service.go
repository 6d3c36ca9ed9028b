package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/domain"
	maildelivery "github.com/imoklv/imok/internal/mail"
	"github.com/imoklv/imok/internal/observability"
	"github.com/imoklv/imok/internal/repository"
)

var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidToken      = errors.New("invalid or expired validation token")
	ErrEmailNotValidated = errors.New("email not validated")
	ErrMailDelivery      = errors.New("mail delivery failed")
)

// RegisterResult is what the public registration endpoint returns: the
// freshly minted device hash and whether the owner still has to click
// the verification link.
type RegisterResult struct {
	DeviceID          string
	NeedsVerification bool
}

type DeviceService struct {
	repo   repository.DeviceRepository
	mailer maildelivery.Sender
	cache  NegativeLookupCache
	cfg    *config.Config
}

func NewDeviceService(repo repository.DeviceRepository, mailer maildelivery.Sender, cache NegativeLookupCache, cfg *config.Config) *DeviceService {
	if cache == nil {
		cache = NewInMemoryNegativeLookupCache()
	}
	return &DeviceService{repo: repo, mailer: mailer, cache: cache, cfg: cfg}
}

// Register creates a device for the given email and sends the
// verification link. The row survives a failed send so the owner can
// retry verification without losing the device hash.
func (s *DeviceService) Register(ctx context.Context, email string) (*RegisterResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		observability.RecordDeviceLifecycle("register", "invalid_email")
		return nil, err
	}

	d, token, err := s.newDevice(email, false)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(d); err != nil {
		observability.RecordDeviceLifecycle("register", "error")
		return nil, fmt.Errorf("create device: %w", err)
	}

	if err := s.sendVerification(ctx, email, token); err != nil {
		observability.RecordDeviceLifecycle("register", "mail_error")
		return nil, err
	}
	observability.RecordDeviceLifecycle("register", "success")
	return &RegisterResult{DeviceID: d.Hash, NeedsVerification: true}, nil
}

// CreateTrusted registers a device for an email that may already have
// a verified device. Known-good owners skip the verification loop and
// get a pre-validated row with no email sent.
func (s *DeviceService) CreateTrusted(ctx context.Context, email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		observability.RecordDeviceLifecycle("create_trusted", "invalid_email")
		return "", err
	}

	trusted, err := s.repo.HasValidatedEmail(email)
	if err != nil {
		observability.RecordDeviceLifecycle("create_trusted", "error")
		return "", fmt.Errorf("check validated email: %w", err)
	}

	d, token, err := s.newDevice(email, trusted)
	if err != nil {
		return "", err
	}
	if err := s.repo.Create(d); err != nil {
		observability.RecordDeviceLifecycle("create_trusted", "error")
		return "", fmt.Errorf("create device: %w", err)
	}

	if !trusted {
		if err := s.sendVerification(ctx, email, token); err != nil {
			observability.RecordDeviceLifecycle("create_trusted", "mail_error")
			return "", err
		}
	}
	observability.RecordDeviceLifecycle("create_trusted", "success")
	return d.Hash, nil
}

// Ping records a liveness check-in. Unknown hashes are remembered in
// the negative lookup cache so repeated junk traffic never reaches the
// database.
func (s *DeviceService) Ping(ctx context.Context, hash, ip string) (repository.PingOutcome, error) {
	if hit, err := s.cache.Contains(ctx, hash); err == nil && hit {
		observability.RecordPingDecision("not_found_cached")
		return repository.PingOutcome{}, repository.ErrDeviceNotFound
	}

	out, err := s.repo.RecordPing(hash, ip, time.Now().UTC(), s.cfg.PingMinInterval)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			_ = s.cache.Add(ctx, hash, s.cfg.NegativeLookupTTL)
			observability.RecordPingDecision("not_found")
			return out, err
		}
		observability.RecordPingDecision("error")
		return out, err
	}
	if !out.Accepted {
		observability.RecordPingDecision("rate_limited")
		return out, nil
	}
	observability.RecordPingDecision("accepted")
	return out, nil
}

// Status returns the device row with its derived status.
func (s *DeviceService) Status(ctx context.Context, hash string) (*domain.DeviceView, error) {
	if hit, err := s.cache.Contains(ctx, hash); err == nil && hit {
		return nil, repository.ErrDeviceNotFound
	}

	d, err := s.repo.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			_ = s.cache.Add(ctx, hash, s.cfg.NegativeLookupTTL)
		}
		return nil, err
	}
	view := d.View(time.Now().UTC(), s.cfg.OfflineAfter)
	return &view, nil
}

// SetNotifications toggles alerting. Unknown hashes succeed silently;
// the UI treats the toggle as fire-and-forget.
func (s *DeviceService) SetNotifications(ctx context.Context, hash string, enabled bool) error {
	if err := s.repo.SetNotifications(hash, enabled); err != nil {
		observability.RecordDeviceLifecycle("set_notifications", "error")
		return err
	}
	observability.RecordDeviceLifecycle("set_notifications", "success")
	return nil
}

// Rename sets the display name. Only owners who completed email
// verification may name devices.
func (s *DeviceService) Rename(ctx context.Context, hash, name string) error {
	d, err := s.repo.FindByHash(hash)
	if err != nil {
		return err
	}
	if !d.EmailValidated {
		observability.RecordDeviceLifecycle("rename", "forbidden")
		return ErrEmailNotValidated
	}
	name = strings.TrimSpace(name)
	// Cap on a rune boundary; a byte slice could cut a multi-byte
	// character in half and store invalid UTF-8.
	if runes := []rune(name); len(runes) > 128 {
		name = string(runes[:128])
	}
	if err := s.repo.UpdateName(hash, name); err != nil {
		observability.RecordDeviceLifecycle("rename", "error")
		return err
	}
	observability.RecordDeviceLifecycle("rename", "success")
	return nil
}

func (s *DeviceService) Delete(ctx context.Context, hash string) error {
	if err := s.repo.Delete(hash); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			observability.RecordDeviceLifecycle("delete", "not_found")
		} else {
			observability.RecordDeviceLifecycle("delete", "error")
		}
		return err
	}
	observability.RecordDeviceLifecycle("delete", "success")
	return nil
}

// Verify consumes a validation token and returns the owning device
// hash for the redirect back to the dashboard.
func (s *DeviceService) Verify(ctx context.Context, token string) (string, error) {
	d, err := s.repo.ConsumeValidationToken(token, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			observability.RecordDeviceLifecycle("verify", "invalid_token")
			return "", ErrInvalidToken
		}
		observability.RecordDeviceLifecycle("verify", "error")
		return "", err
	}
	observability.RecordDeviceLifecycle("verify", "success")
	return d.Hash, nil
}

func (s *DeviceService) newDevice(email string, validated bool) (*domain.Device, string, error) {
	hash, err := newSecretHex()
	if err != nil {
		return nil, "", fmt.Errorf("generate device hash: %w", err)
	}
	d := &domain.Device{
		Hash:               hash,
		Email:              email,
		EmailValidated:     validated,
		EmailNotifications: true,
	}
	var token string
	if !validated {
		token, err = newSecretHex()
		if err != nil {
			return nil, "", fmt.Errorf("generate validation token: %w", err)
		}
		expires := time.Now().UTC().Add(s.cfg.ValidationTokenTTL)
		d.ValidationToken = &token
		d.ValidationExpires = &expires
	}
	return d, token, nil
}

func (s *DeviceService) sendVerification(ctx context.Context, email, token string) error {
	verifyURL := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/verify/" + token
	subject, body := maildelivery.VerificationEmail(verifyURL, s.cfg.ValidationTokenTTL)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailSendTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, email, subject, body); err != nil {
		observability.RecordNotification("verification", "error")
		return fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}
	observability.RecordNotification("verification", "success")
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// newSecretHex returns 32 random bytes as 64 hex characters, the format
// used for both device hashes and validation tokens.
func newSecretHex() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
