package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type targetsFile struct {
	Targets []target `json:"targets"`
}

type probe struct {
	status   int
	body     []byte
	duration time.Duration
}

type comparison struct {
	Target         target
	GoStatus       int
	LegacyStatus   int
	DurationGo     time.Duration
	DurationLegacy time.Duration
	BodyDiff       string
	StatusMatch    bool
	Err            error
}

func (c comparison) clean() bool {
	return c.Err == nil && c.StatusMatch && c.BodyDiff == ""
}

type runner struct {
	client *http.Client
	token  string
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		authToken   string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "Legacy API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&authToken, "token", os.Getenv("SHADOW_COMPARE_TOKEN"), "Bearer token sent to both backends (admission routes require auth)")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	r := runner{client: &http.Client{Timeout: timeout}, token: authToken}

	breaking, optional := 0, 0
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, tgt := range targets {
		comp := r.compare(goBase, legacyBase, tgt)
		if !comp.clean() {
			if tgt.Critical {
				breaking++
			} else {
				optional++
			}
		}
		printComparison(comp)
	}

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file targetsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func (r runner) compare(goBase, legacyBase string, tgt target) comparison {
	comp := comparison{Target: tgt}

	goProbe, err := r.fetch(goBase, tgt)
	if err != nil {
		comp.Err = fmt.Errorf("go request failed: %w", err)
		return comp
	}
	legacyProbe, err := r.fetch(legacyBase, tgt)
	if err != nil {
		comp.Err = fmt.Errorf("legacy request failed: %w", err)
		return comp
	}

	comp.GoStatus = goProbe.status
	comp.LegacyStatus = legacyProbe.status
	comp.DurationGo = goProbe.duration
	comp.DurationLegacy = legacyProbe.duration
	comp.StatusMatch = goProbe.status == legacyProbe.status
	comp.BodyDiff = diffBodies(goProbe.body, legacyProbe.body)
	return comp
}

func (r runner) fetch(base string, tgt target) (probe, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	url := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(tgt.Path, "/")

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return probe{}, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return probe{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return probe{}, err
	}
	return probe{status: resp.StatusCode, body: body, duration: time.Since(start)}, nil
}

// volatileKeys never match across backends: the Go envelope carries
// diagnostic meta the legacy backend does not send, and timestamps differ
// per run.
var volatileKeys = []string{"meta", "generated_at", "request_id"}

// diffBodies returns the JSON path of the first difference, or "" when the
// bodies agree after normalization.
func diffBodies(a, b []byte) string {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return ""
	}
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return "$ (non-JSON bodies differ)"
	}
	return firstDiff(normalize(av), normalize(bv), "$")
}

// normalize strips volatile keys and collapses whole-number floats so the
// two decoders' representations compare cleanly.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for _, k := range volatileKeys {
			delete(val, k)
		}
		for k, inner := range val {
			val[k] = normalize(inner)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = normalize(inner)
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	}
	return v
}

func firstDiff(a, b interface{}, path string) string {
	if am, ok := a.(map[string]interface{}); ok {
		bm, ok := b.(map[string]interface{})
		if !ok {
			return path
		}
		keys := make([]string, 0, len(am))
		for k := range am {
			keys = append(keys, k)
		}
		for k := range bm {
			if _, seen := am[k]; !seen {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			av, aHas := am[k]
			bv, bHas := bm[k]
			if !aHas || !bHas {
				return path + "." + k
			}
			if d := firstDiff(av, bv, path+"."+k); d != "" {
				return d
			}
		}
		return ""
	}

	if as, ok := a.([]interface{}); ok {
		bs, ok := b.([]interface{})
		if !ok {
			return path
		}
		if len(as) != len(bs) {
			return fmt.Sprintf("%s (length %d vs %d)", path, len(as), len(bs))
		}
		for i := range as {
			if d := firstDiff(as[i], bs[i], fmt.Sprintf("%s[%d]", path, i)); d != "" {
				return d
			}
		}
		return ""
	}

	// a is a scalar or nil here; a composite on the b side is a mismatch and
	// must not reach the interface comparison below.
	switch b.(type) {
	case map[string]interface{}, []interface{}:
		return path
	}
	if a != b {
		return path
	}
	return ""
}

func printComparison(c comparison) {
	verdict := "OK"
	if c.Err != nil {
		verdict = "ERROR"
	} else if !c.clean() {
		verdict = "DIFF"
	}
	fmt.Printf("[%s] %s %s\n", verdict, c.Target.Method, c.Target.Path)
	if c.Err != nil {
		fmt.Printf("  %v\n", c.Err)
		return
	}
	fmt.Printf("  go %d in %s | legacy %d in %s | critical=%t\n",
		c.GoStatus, c.DurationGo, c.LegacyStatus, c.DurationLegacy, c.Target.Critical)
	if c.BodyDiff != "" {
		fmt.Printf("  first difference at %s\n", c.BodyDiff)
	}
}
