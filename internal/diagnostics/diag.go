package diagnostics

import (
	"strings"
	"time"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// FromLine classifies a host-link diagnostic text line by its prefix.
func FromLine(line string) Diagnostic {
	d := Diagnostic{Severity: Info, Code: "SERIAL.INFO", Summary: line}
	switch {
	case strings.HasPrefix(line, "ERROR:"):
		d.Severity, d.Code = Err, "SERIAL.FORMAT"
		d.Summary = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		d.SuggestedFixes = []string{"send C,S,<enabled>,<pre>,<pulse>,<post> or C,T,<enabled>,<pulse> with decimal fields"}
	case strings.HasPrefix(line, "WARNING:"):
		d.Severity, d.Code = Warn, "SERIAL.RANGE"
		d.Summary = strings.TrimSpace(strings.TrimPrefix(line, "WARNING:"))
	}
	return d
}

// CameraFault describes a latched camera error code.
func CameraFault(code string, count int) Diagnostic {
	d := Diagnostic{
		Severity: Err,
		Code:     "CAMERA." + strings.ToUpper(code),
		Summary:  "Camera trigger failed",
		Evidence: map[string]any{"code": code, "trigger_count": count},
	}
	switch code {
	case "timeout":
		d.LikelyCauses = []string{"camera busy line never released", "ready timeout shorter than exposure"}
		d.SuggestedFixes = []string{"check the busy line wiring", "raise camera.ready_timeout"}
	case "not_ready":
		d.LikelyCauses = []string{"camera still processing the previous shot"}
		d.SuggestedFixes = []string{"raise camera.post_delay"}
	case "trigger_failure":
		d.LikelyCauses = []string{"trigger GPIO write failed"}
	}
	return d
}
