package models

import "time"

// CutoverStage enumerates the phases of moving admission traffic off the
// legacy Node admin backend.
type CutoverStage string

const (
	// CutoverStageLegacy means the Node backend still serves everything.
	CutoverStageLegacy CutoverStage = "legacy"
	// CutoverStageShadow mirrors requests here while responses still come
	// from the Node side.
	CutoverStageShadow CutoverStage = "shadow"
	// CutoverStageCanary routes a percentage of client segments here.
	CutoverStageCanary CutoverStage = "canary"
	// CutoverStageFull routes everything here with the Node side read-only.
	CutoverStageFull CutoverStage = "full-cutover"
)

// Backend names a routing decision target during the cutover.
const (
	BackendGo     = "go"
	BackendLegacy = "legacy"
)

// CutoverHeaders carries the per-request rollout diagnostics the middleware
// applies and the status endpoint reports.
type CutoverHeaders struct {
	StageHeader   string       `json:"stage_header"`
	Stage         CutoverStage `json:"stage"`
	SegmentHeader string       `json:"segment_header"`
	Segment       string       `json:"segment"`
	Backend       string       `json:"backend"`
}

// CutoverFlags is the rollout flag state captured at one instant. The field
// names mirror the configuration keys that drive them.
type CutoverFlags struct {
	RouteToGo        bool `json:"route_to_go"`
	ShadowTraffic    bool `json:"shadow_traffic"`
	LegacyReadOnly   bool `json:"legacy_readonly"`
	CanaryPercentage int  `json:"canary_percentage"`
}

// CutoverPingResult is one health probe outcome with the flag state at the
// moment of the probe, so dashboards can correlate reachability with the
// rollout position.
type CutoverPingResult struct {
	Target     string        `json:"target"`
	Reachable  bool          `json:"reachable"`
	Stage      CutoverStage  `json:"stage"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	ObservedAt time.Time     `json:"observed_at"`
	Error      string        `json:"error,omitempty"`
	Flags      CutoverFlags  `json:"flags"`
}
