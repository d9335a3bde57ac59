// Package recognize fuses per-classifier votes into per-face verdicts.
package recognize

import (
	"image"
	"image/color"
	"strings"
)

// Renderer palette: alert red for unrecognized faces, confirm green
// once the ensemble agrees on an identity.
var (
	ColorAlert   = color.RGBA{R: 255, A: 255}
	ColorConfirm = color.RGBA{G: 255, A: 255}
)

// Verdict is the fused decision for one face in one frame. It is
// transient: consumed by the renderer and the debouncer, never stored.
type Verdict struct {
	// Box is the face bounding box in frame pixel coordinates.
	Box image.Rectangle

	Detected bool

	// Label is the class name picked by the first contributing
	// classifier. Meaningful to callers only when Detected.
	Label string

	// Confidence is the mean of the contributing probabilities when
	// detected, 0 otherwise.
	Confidence float64

	// DebugLines holds one formatted line per contributing classifier
	// plus a trailing summary; populated only in debug mode.
	DebugLines []string
}

// Thin reports whether the renderer should draw a thin outline.
// Unrecognized faces stay thin, confirmed identities get weight.
func (v *Verdict) Thin() bool { return !v.Detected }

// Color is the outline and label color hint for the renderer.
func (v *Verdict) Color() color.RGBA {
	if v.Detected {
		return ColorConfirm
	}
	return ColorAlert
}

// OverlayText is the on-frame label block: all debug lines in debug
// mode, the bare label for a detected face otherwise, else nothing.
func (v *Verdict) OverlayText() string {
	if len(v.DebugLines) > 0 {
		return strings.Join(v.DebugLines, "\n")
	}
	if v.Detected {
		return v.Label
	}
	return ""
}
