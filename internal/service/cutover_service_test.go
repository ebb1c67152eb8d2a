package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noah-isme/ims-admission-api/internal/models"
	"github.com/noah-isme/ims-admission-api/pkg/config"
)

func TestCutoverStageAndRouting(t *testing.T) {
	cases := map[string]struct {
		cfg         config.CutoverConfig
		wantStage   models.CutoverStage
		wantBackend string
	}{
		"flags off": {
			cfg:         config.CutoverConfig{},
			wantStage:   models.CutoverStageLegacy,
			wantBackend: models.BackendLegacy,
		},
		"shadow mirror only": {
			cfg:         config.CutoverConfig{ShadowTraffic: true},
			wantStage:   models.CutoverStageShadow,
			wantBackend: models.BackendLegacy,
		},
		"partial canary": {
			// Backend depends on the segment hash, asserted separately.
			cfg:       config.CutoverConfig{RouteToGo: true, CanaryPercentage: 10},
			wantStage: models.CutoverStageCanary,
		},
		"zero percent canary": {
			cfg:         config.CutoverConfig{RouteToGo: true, CanaryPercentage: 0},
			wantStage:   models.CutoverStageCanary,
			wantBackend: models.BackendLegacy,
		},
		"full by percentage": {
			cfg:         config.CutoverConfig{RouteToGo: true, CanaryPercentage: 100},
			wantStage:   models.CutoverStageFull,
			wantBackend: models.BackendGo,
		},
		"full by readonly lock": {
			cfg:         config.CutoverConfig{RouteToGo: true, LegacyReadOnly: true, CanaryPercentage: 50},
			wantStage:   models.CutoverStageFull,
			wantBackend: models.BackendGo,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewCutoverService(tc.cfg, nil)
			if got := svc.Stage(); got != tc.wantStage {
				t.Fatalf("Stage() = %s, want %s", got, tc.wantStage)
			}
			if tc.wantBackend == "" {
				return
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if got := svc.HeadersForRequest(req).Backend; got != tc.wantBackend {
				t.Fatalf("Backend = %s, want %s", got, tc.wantBackend)
			}
		})
	}
}

func TestCutoverHeaders(t *testing.T) {
	t.Run("configured names", func(t *testing.T) {
		svc := NewCutoverService(config.CutoverConfig{RouteToGo: true, StageHeader: "X-Test-Stage", ClientSegmentHeader: "X-Test-Segment"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Test-Segment", "segment-42")

		headers := svc.HeadersForRequest(req)
		if headers.StageHeader != "X-Test-Stage" || headers.SegmentHeader != "X-Test-Segment" {
			t.Fatalf("header names not taken from config: %+v", headers)
		}
		if headers.Segment != "segment-42" {
			t.Fatalf("expected propagated segment, got %s", headers.Segment)
		}
		if headers.Stage != models.CutoverStageCanary {
			t.Fatalf("expected canary stage, got %s", headers.Stage)
		}
	})

	t.Run("default names and derived segment", func(t *testing.T) {
		svc := NewCutoverService(config.CutoverConfig{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		headers := svc.HeadersForRequest(req)
		if headers.StageHeader != "X-Cutover-Stage" || headers.SegmentHeader != "X-Client-Segment" {
			t.Fatalf("expected default header names, got %+v", headers)
		}
		if headers.Segment == "" {
			t.Fatalf("expected a derived segment for an anonymous client")
		}
	})
}

func TestBackendRoutingIsStablePerSegment(t *testing.T) {
	svc := NewCutoverService(config.CutoverConfig{RouteToGo: true, CanaryPercentage: 50, ClientSegmentHeader: "X-Seg"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Seg", "branch-office-7")

	first := svc.HeadersForRequest(req).Backend
	if first != models.BackendGo && first != models.BackendLegacy {
		t.Fatalf("unexpected backend %s", first)
	}
	for i := 0; i < 10; i++ {
		if got := svc.HeadersForRequest(req).Backend; got != first {
			t.Fatalf("routing flapped: %s then %s", first, got)
		}
	}
}

func newPingTarget(t *testing.T, status int) *CutoverService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	svc := NewCutoverService(config.CutoverConfig{
		GoHealthURL:        server.URL,
		LegacyHealthURL:    server.URL,
		HealthCheckTimeout: time.Second,
		ShadowTraffic:      true,
	}, nil)
	svc.client = server.Client()
	return svc
}

func TestPingSuccess(t *testing.T) {
	svc := newPingTarget(t, http.StatusOK)

	res, err := svc.PingGo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Reachable || res.StatusCode != http.StatusOK {
		t.Fatalf("expected reachable 200, got %+v", res)
	}
	if res.Duration <= 0 {
		t.Fatalf("expected duration > 0")
	}
	if res.ObservedAt.IsZero() {
		t.Fatalf("expected probe timestamp")
	}
	if !res.Flags.ShadowTraffic {
		t.Fatalf("expected flag snapshot on the probe result")
	}
}

func TestPingServerError(t *testing.T) {
	svc := newPingTarget(t, http.StatusInternalServerError)

	res, err := svc.PingLegacy(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.Reachable {
		t.Fatalf("expected unreachable flag when 5xx returned")
	}
	if res.StatusCode != http.StatusInternalServerError || res.Error == "" {
		t.Fatalf("expected recorded 5xx failure, got %+v", res)
	}
}

func TestPingMissingURL(t *testing.T) {
	svc := NewCutoverService(config.CutoverConfig{}, nil)

	res, err := svc.PingLegacy(context.Background())
	if err == nil {
		t.Fatalf("expected error for missing URL")
	}
	if res.Error == "" {
		t.Fatalf("expected error recorded on the result")
	}
}
