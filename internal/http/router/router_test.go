package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/domain"
	"github.com/imoklv/imok/internal/health"
	"github.com/imoklv/imok/internal/http/handler"
	"github.com/imoklv/imok/internal/repository"
	"github.com/imoklv/imok/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type captureSender struct {
	sent []string
}

func (s *captureSender) Send(_ context.Context, to, _, _ string) error {
	s.sent = append(s.sent, to)
	return nil
}

type unhealthyChecker struct{}

func (unhealthyChecker) Check(context.Context) health.CheckResult {
	return health.CheckResult{Name: "database", Error: "db down"}
}

func newRouterForTest(t *testing.T, mutate func(*Dependencies)) (http.Handler, repository.DeviceRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Device{}); err != nil {
		t.Fatalf("migrate device: %v", err)
	}
	repo := repository.NewDeviceRepository(db)

	cfg := &config.Config{
		PublicBaseURL:      "https://imok.test",
		PingMinInterval:    59 * time.Second,
		OfflineAfter:       5 * time.Minute,
		NotifyCooldown:     time.Hour,
		ValidationTokenTTL: 24 * time.Hour,
		NegativeLookupTTL:  time.Minute,
		MailSendTimeout:    5 * time.Second,
	}
	svc := service.NewDeviceService(repo, &captureSender{}, service.NewInMemoryNegativeLookupCache(), cfg)

	dep := Dependencies{
		Devices:          handler.NewDeviceHandler(svc, nil),
		CORSOrigins:      []string{"https://imok.test"},
		CreateRateLimit:  1000,
		CreateRateWindow: time.Minute,
	}
	if mutate != nil {
		mutate(&dep)
	}
	return NewRouter(dep), repo
}

func perform(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoints(t *testing.T) {
	t.Run("live is always ok", func(t *testing.T) {
		r, _ := newRouterForTest(t, nil)
		rr := perform(r, http.MethodGet, "/health/live", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("nil readiness reports ready", func(t *testing.T) {
		r, _ := newRouterForTest(t, nil)
		rr := perform(r, http.MethodGet, "/health/ready", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready payload, got %s", rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		r, _ := newRouterForTest(t, func(dep *Dependencies) {
			dep.Readiness = health.NewProbeRunner(time.Second, 0, unhealthyChecker{})
		})
		rr := perform(r, http.MethodGet, "/health/ready", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})
}

func TestRouterRegisterAndPingFlow(t *testing.T) {
	r, _ := newRouterForTest(t, nil)

	rr := perform(r, http.MethodPost, "/generate", `{"email":"owner@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var reg struct {
		DeviceID          string `json:"deviceId"`
		NeedsVerification bool   `json:"needsVerification"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if len(reg.DeviceID) != 64 || !reg.NeedsVerification {
		t.Fatalf("unexpected register response: %+v", reg)
	}

	rr = perform(r, http.MethodGet, "/u/"+reg.DeviceID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ping: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"success":true`) {
		t.Fatalf("unexpected ping body: %s", rr.Body.String())
	}

	rr = perform(r, http.MethodGet, "/u/"+reg.DeviceID, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second ping: expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
	var limited struct {
		Error string `json:"error"`
		Wait  int    `json:"wait"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &limited); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if limited.Error != "Rate limit exceeded" || limited.Wait < 1 || limited.Wait > 59 {
		t.Fatalf("unexpected 429 body: %+v", limited)
	}
}

func TestRouterRegisterRejectsBadEmail(t *testing.T) {
	r, _ := newRouterForTest(t, nil)

	rr := perform(r, http.MethodPost, "/generate", `{"email":"nope"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error":"Invalid email address"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestRouterPingUnknownHash(t *testing.T) {
	r, _ := newRouterForTest(t, nil)

	rr := perform(r, http.MethodGet, "/u/deadbeef", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error":"Device not found"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestRouterStatusHidesValidationToken(t *testing.T) {
	r, repo := newRouterForTest(t, nil)

	rr := perform(r, http.MethodPost, "/generate", `{"email":"owner@example.com"}`)
	var reg struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, err := repo.FindByHash(reg.DeviceID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	rr = perform(r, http.MethodGet, "/status/"+reg.DeviceID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"Never Connected"`) {
		t.Fatalf("expected derived status, got %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), *d.ValidationToken) {
		t.Fatal("status response must not leak the validation token")
	}
}

func TestRouterNotificationsToggleQuirk(t *testing.T) {
	r, _ := newRouterForTest(t, nil)

	rr := perform(r, http.MethodPost, "/notifications/unknownhash", `{"enabled":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown-hash toggle must succeed, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"enabled":true`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestRouterRenameRequiresVerifiedEmail(t *testing.T) {
	r, repo := newRouterForTest(t, nil)

	rr := perform(r, http.MethodPost, "/generate", `{"email":"owner@example.com"}`)
	var reg struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = perform(r, http.MethodPost, "/name/"+reg.DeviceID, `{"name":"Garage Pi"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before verification, got %d", rr.Code)
	}

	d, err := repo.FindByHash(reg.DeviceID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	perform(r, http.MethodGet, "/verify/"+*d.ValidationToken, "")

	rr = perform(r, http.MethodPost, "/name/"+reg.DeviceID, `{"name":"Garage Pi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after verification, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterVerifyRedirects(t *testing.T) {
	r, repo := newRouterForTest(t, nil)

	rr := perform(r, http.MethodPost, "/generate", `{"email":"owner@example.com"}`)
	var reg struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	d, err := repo.FindByHash(reg.DeviceID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	token := *d.ValidationToken

	rr = perform(r, http.MethodGet, "/verify/"+token, "")
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := loc.Query()
	if q.Get("device") != reg.DeviceID || q.Get("verified") != "1" || q.Get("status") != "verified" {
		t.Fatalf("unexpected redirect: %s", rr.Header().Get("Location"))
	}

	// Second consume fails with the error redirect, on both routes.
	for _, path := range []string{"/verify/" + token, "/validate/" + token} {
		rr = perform(r, http.MethodGet, path, "")
		if rr.Code != http.StatusFound {
			t.Fatalf("%s: expected 302, got %d", path, rr.Code)
		}
		if rr.Header().Get("Location") != "/?error=invalid_or_expired" {
			t.Fatalf("%s: unexpected redirect %s", path, rr.Header().Get("Location"))
		}
	}
}

func TestRouterDeleteDevice(t *testing.T) {
	r, repo := newRouterForTest(t, nil)
	if err := repo.Create(&domain.Device{Hash: "gonehash", Email: "owner@example.com"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rr := perform(r, http.MethodDelete, "/device/gonehash", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	rr = perform(r, http.MethodDelete, "/device/gonehash", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestRouterCreateEndpointsAreRateLimited(t *testing.T) {
	r, _ := newRouterForTest(t, func(dep *Dependencies) {
		dep.CreateRateLimit = 1
		dep.CreateRateWindow = time.Minute
	})

	first := perform(r, http.MethodPost, "/generate", `{"email":"a@example.com"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first create: expected 200, got %d", first.Code)
	}
	second := perform(r, http.MethodPost, "/device", `{"email":"b@example.com"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second create: expected 429, got %d", second.Code)
	}

	// Pings are not covered by the creation limiter.
	if rr := perform(r, http.MethodGet, "/u/nosuchhash", ""); rr.Code == http.StatusTooManyRequests {
		t.Fatal("ping must not be throttled by the creation limiter")
	}
}
