// Package prosody maps sentences to delivery profiles based on punctuation.
package prosody

import (
	"fmt"
	"strings"
)

// Kind names the delivery style picked for a sentence.
type Kind string

const (
	Emphatic      Kind = "emphatic"
	Interrogative Kind = "interrogative"
	Declarative   Kind = "declarative"
)

// Profile holds rate/pitch/volume deltas for one sentence.
type Profile struct {
	Kind Kind `json:"kind"`
	// RatePercent and VolumePercent are relative to the voice default.
	RatePercent   int `json:"rate_percent"`
	PitchHz       int `json:"pitch_hz"`
	VolumePercent int `json:"volume_percent"`
}

var (
	emphaticProfile      = Profile{Kind: Emphatic, RatePercent: -3, PitchHz: 1, VolumePercent: 5}
	interrogativeProfile = Profile{Kind: Interrogative, RatePercent: -5, PitchHz: 2, VolumePercent: 2}
	declarativeProfile   = Profile{Kind: Declarative, RatePercent: -8, PitchHz: -2, VolumePercent: 0}
)

// Classify returns the profile for sentence text. '!' wins over '?'.
func Classify(text string) Profile {
	switch {
	case strings.Contains(text, "!"):
		return emphaticProfile
	case strings.Contains(text, "?"):
		return interrogativeProfile
	default:
		return declarativeProfile
	}
}

// Rate renders the rate delta the way synthesis engines expect it, e.g. "-8%".
func (p Profile) Rate() string { return signed(p.RatePercent) + "%" }

// Pitch renders the pitch delta, e.g. "+2Hz".
func (p Profile) Pitch() string { return signed(p.PitchHz) + "Hz" }

// Volume renders the volume delta, e.g. "+0%".
func (p Profile) Volume() string { return signed(p.VolumePercent) + "%" }

func (p Profile) String() string {
	return fmt.Sprintf("%s(rate=%s pitch=%s volume=%s)", p.Kind, p.Rate(), p.Pitch(), p.Volume())
}

func signed(v int) string {
	if v < 0 {
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("+%d", v)
}
