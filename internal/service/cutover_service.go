package service

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/config"
)

const (
	segmentCookieName  = "cutover_segment"
	defaultPingTimeout = 2 * time.Second
)

// CutoverService coordinates the staged handover from the legacy Node admin
// backend: rollout stage from feature flags, deterministic canary routing
// per client segment, and health probes of both sides.
type CutoverService struct {
	cfg     config.CutoverConfig
	metrics *MetricsService
	client  *http.Client
}

// NewCutoverService constructs a CutoverService with sane defaults.
func NewCutoverService(cfg config.CutoverConfig, metrics *MetricsService) *CutoverService {
	timeout := cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &CutoverService{
		cfg:     cfg,
		metrics: metrics,
		client:  &http.Client{Timeout: timeout},
	}
}

// Stage determines the current rollout stage based on feature flags.
func (s *CutoverService) Stage() models.CutoverStage {
	if s == nil {
		return models.CutoverStageLegacy
	}

	switch {
	case s.cfg.RouteToGo && (s.cfg.LegacyReadOnly || s.cfg.CanaryPercentage >= 100):
		return models.CutoverStageFull
	case s.cfg.RouteToGo:
		return models.CutoverStageCanary
	case s.cfg.ShadowTraffic:
		return models.CutoverStageShadow
	default:
		return models.CutoverStageLegacy
	}
}

// HeadersForRequest returns observability headers for the supplied request,
// including which backend this request's segment routes to.
func (s *CutoverService) HeadersForRequest(r *http.Request) models.CutoverHeaders {
	if s == nil {
		return models.CutoverHeaders{}
	}

	stageHeader := headerOr(s.cfg.StageHeader, "X-Cutover-Stage")
	segmentHeader := headerOr(s.cfg.ClientSegmentHeader, "X-Client-Segment")
	segment := s.segmentForRequest(r, segmentHeader)

	return models.CutoverHeaders{
		StageHeader:   stageHeader,
		Stage:         s.Stage(),
		SegmentHeader: segmentHeader,
		Segment:       segment,
		Backend:       s.backendForSegment(segment),
	}
}

// backendForSegment decides go-or-legacy for a segment. The same segment
// always lands on the same side while the flags hold, so a client never
// flaps between backends mid-session.
func (s *CutoverService) backendForSegment(segment string) string {
	switch s.Stage() {
	case models.CutoverStageFull:
		return models.BackendGo
	case models.CutoverStageCanary:
		if int(bucketFor(segment)) < s.cfg.CanaryPercentage {
			return models.BackendGo
		}
		return models.BackendLegacy
	default:
		return models.BackendLegacy
	}
}

// segmentForRequest resolves the caller's segment: an explicit header wins,
// then the sticky cookie, then a hash of whatever stable client attribute is
// available.
func (s *CutoverService) segmentForRequest(r *http.Request, headerName string) string {
	if r == nil {
		return "unknown"
	}
	if v := strings.TrimSpace(r.Header.Get(headerOr(headerName, "X-Client-Segment"))); v != "" {
		return v
	}
	if v := cookieSegment(r); v != "" {
		return v
	}
	return fmt.Sprintf("segment-%02d", bucketFor(sourceSeed(r)))
}

func cookieSegment(r *http.Request) string {
	cookie, err := r.Cookie(segmentCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// sourceSeed picks a stable per-client value for hashing when the caller did
// not identify its segment: proxy-forwarded IP, then remote address, then
// user agent.
func sourceSeed(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if trimmed := strings.TrimSpace(first); trimmed != "" {
			return trimmed
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	if ua := r.UserAgent(); ua != "" {
		return ua
	}
	return "fallback"
}

func bucketFor(seed string) uint32 {
	sum := sha1.Sum([]byte(seed))
	return binary.BigEndian.Uint32(sum[:]) % 100
}

func headerOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// PingLegacy probes the Node admin backend's health endpoint.
func (s *CutoverService) PingLegacy(ctx context.Context) (models.CutoverPingResult, error) {
	return s.ping(ctx, "legacy", s.cfg.LegacyHealthURL)
}

// PingGo probes this service's own health endpoint through the public URL,
// exercising the same path a dashboard would.
func (s *CutoverService) PingGo(ctx context.Context) (models.CutoverPingResult, error) {
	return s.ping(ctx, "go", s.cfg.GoHealthURL)
}

func (s *CutoverService) ping(ctx context.Context, target, url string) (models.CutoverPingResult, error) {
	result := s.flagSnapshot(target)

	if url == "" {
		err := errors.New("health URL not configured")
		result.Error = err.Error()
		return result, err
	}

	status, duration, err := s.probe(ctx, url)
	result.Duration = duration

	observed := http.StatusServiceUnavailable
	switch {
	case err != nil:
		result.Error = err.Error()
	case status >= http.StatusInternalServerError:
		observed = status
		result.StatusCode = status
		result.Error = fmt.Sprintf("received status %d", status)
		err = fmt.Errorf("%s health check failed: %s", target, result.Error)
	default:
		observed = status
		result.StatusCode = status
		result.Reachable = true
	}

	if s.metrics != nil {
		s.metrics.ObserveHTTPRequest(http.MethodGet, fmt.Sprintf("cutover_%s_health", target), observed, duration)
	}

	return result, err
}

// flagSnapshot records the flag state alongside each probe so a dashboard can
// correlate reachability with the rollout position at that moment.
func (s *CutoverService) flagSnapshot(target string) models.CutoverPingResult {
	return models.CutoverPingResult{
		Target:     target,
		Stage:      s.Stage(),
		ObservedAt: time.Now().UTC(),
		Flags: models.CutoverFlags{
			RouteToGo:        s.cfg.RouteToGo,
			ShadowTraffic:    s.cfg.ShadowTraffic,
			LegacyReadOnly:   s.cfg.LegacyReadOnly,
			CanaryPercentage: s.cfg.CanaryPercentage,
		},
	}
}

func (s *CutoverService) probe(ctx context.Context, url string) (int, time.Duration, error) {
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: defaultPingTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return 0, duration, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, duration, nil
}
