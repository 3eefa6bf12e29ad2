package version

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Result is the outcome of matching the running environment against an
// adapter declaration. Values are ordered: Incompatible < Compatible < Exact.
type Result int

const (
	Incompatible Result = iota
	Compatible
	Exact
)

func (r Result) String() string {
	switch r {
	case Exact:
		return "exact"
	case Compatible:
		return "compatible"
	default:
		return "incompatible"
	}
}

// Usable reports whether the result admits the candidate.
func (r Result) Usable() bool { return r >= Compatible }

// Runtime identifies the platform the host is running on.
type Runtime struct {
	Platform string
	Version  Version
}

func (r Runtime) String() string {
	return r.Platform + "@" + r.Version.String()
}

// Match compares the running environment with one adapter declaration.
//
// A different platform is always Incompatible. A declared version equal to
// the running one is Exact. Otherwise the runtime is Compatible when it falls
// inside the caret range of any declared version: same major version, not
// older than the declaration (for 0.x, same minor). Only the first three
// components take part in the range check.
func Match(platform string, declared []Version, runtime Runtime) Result {
	if platform != runtime.Platform {
		return Incompatible
	}

	result := Incompatible
	for _, d := range declared {
		if Compare(d, runtime.Version) == 0 {
			return Exact
		}
		if result == Incompatible && caretAllows(d, runtime.Version) {
			result = Compatible
		}
	}
	return result
}

func caretAllows(declared, running Version) bool {
	c, err := mm.NewConstraint(fmt.Sprintf("^%d.%d.%d",
		declared.Component(0), declared.Component(1), declared.Component(2)))
	if err != nil {
		return false
	}
	return c.Check(semverOf(running))
}

func semverOf(v Version) *mm.Version {
	return mm.New(v.Component(0), v.Component(1), v.Component(2), "", "")
}
