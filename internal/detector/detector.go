// Package detector classifies lines of supervised-server console output.
// Markers are configuration, not code: the supervisor only reacts to the
// classes emitted here and never inspects line content itself.
package detector

import (
	"fmt"
	"regexp"
	"strings"
)

// Class is the classification of a single output line.
type Class int

const (
	// ClassNone marks an informational line with no lifecycle meaning.
	ClassNone Class = iota
	// ClassReady marks the line that signals the server accepts connections.
	ClassReady
	// ClassBridge marks the line that signals the crossplay bridge is online.
	ClassBridge
	// ClassFatal marks an error-stream line matching a configured failure
	// keyword. Fatal lines are diagnostics only; actual failure is decided
	// by the process exit code.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassReady:
		return "ready"
	case ClassBridge:
		return "bridge"
	case ClassFatal:
		return "fatal"
	default:
		return "none"
	}
}

// MarkerConfig is one marker entry as parsed from the config file.
// Type is "contains" (default) or "regex".
type MarkerConfig struct {
	Type  string `json:"type" mapstructure:"type"`
	Value string `json:"value" mapstructure:"value"`
}

// Config groups the marker sets for the three classes.
type Config struct {
	Ready  []MarkerConfig `json:"ready" mapstructure:"ready"`
	Bridge []MarkerConfig `json:"bridge" mapstructure:"bridge"`
	Fatal  []MarkerConfig `json:"fatal" mapstructure:"fatal"`
}

// Match is the result of classifying one line.
type Match struct {
	Class  Class
	Marker string // the configured marker value that matched
}

type matcher struct {
	raw string
	sub string
	re  *regexp.Regexp
}

func (m matcher) matches(line string) bool {
	if m.re != nil {
		return m.re.MatchString(line)
	}
	return strings.Contains(line, m.sub)
}

// Detector classifies output lines against configured markers.
// It holds no state and is safe for concurrent use.
type Detector struct {
	ready  []matcher
	bridge []matcher
	fatal  []matcher
}

func New(cfg Config) (*Detector, error) {
	d := &Detector{}
	var err error
	if d.ready, err = compile(cfg.Ready); err != nil {
		return nil, fmt.Errorf("ready markers: %w", err)
	}
	if d.bridge, err = compile(cfg.Bridge); err != nil {
		return nil, fmt.Errorf("bridge markers: %w", err)
	}
	if d.fatal, err = compile(cfg.Fatal); err != nil {
		return nil, fmt.Errorf("fatal markers: %w", err)
	}
	return d, nil
}

func compile(mcs []MarkerConfig) ([]matcher, error) {
	out := make([]matcher, 0, len(mcs))
	for _, mc := range mcs {
		if mc.Value == "" {
			return nil, fmt.Errorf("marker requires a value")
		}
		switch mc.Type {
		case "", "contains":
			out = append(out, matcher{raw: mc.Value, sub: mc.Value})
		case "regex":
			re, err := regexp.Compile(mc.Value)
			if err != nil {
				return nil, fmt.Errorf("marker %q: %w", mc.Value, err)
			}
			out = append(out, matcher{raw: mc.Value, re: re})
		default:
			return nil, fmt.Errorf("unknown marker type %q", mc.Type)
		}
	}
	return out, nil
}

// Classify inspects one line. Ready and bridge markers apply to the stdout
// stream; fatal markers apply to the error stream. The first matching class
// wins in the order ready, bridge, fatal.
func (d *Detector) Classify(line string, stderr bool) Match {
	if !stderr {
		for _, m := range d.ready {
			if m.matches(line) {
				return Match{Class: ClassReady, Marker: m.raw}
			}
		}
		for _, m := range d.bridge {
			if m.matches(line) {
				return Match{Class: ClassBridge, Marker: m.raw}
			}
		}
		return Match{Class: ClassNone}
	}
	for _, m := range d.fatal {
		if m.matches(line) {
			return Match{Class: ClassFatal, Marker: m.raw}
		}
	}
	return Match{Class: ClassNone}
}
