/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import "math"

const (
	imageGap        = 30
	stripeGap       = 120
	imageClearance  = 180
	stripeClearance = 70
)

// Metrics are the layout measurements a page reports, in CSS pixels.
type Metrics struct {
	GameTop            float64 `json:"game_top"`
	GameHeight         float64 `json:"game_height"`
	InstructionsTop    float64 `json:"instructions_top"`
	InstructionsHeight float64 `json:"instructions_height"`
	ViewportHeight     float64 `json:"viewport_height"`
}

// Offsets position the footer images and stripes.
type Offsets struct {
	ImagesTop  float64 `json:"images_top"`
	StripesTop float64 `json:"stripes_top"`
}

// Reflow keeps the footer decorations just below the game area, without
// pushing either below the bottom of the viewport.
func Reflow(m Metrics) Offsets {
	bottom := math.Max(m.GameTop+m.GameHeight, m.InstructionsTop+m.InstructionsHeight)

	images := bottom + imageGap
	stripes := images + stripeGap

	return Offsets{
		ImagesTop:  math.Min(images, m.ViewportHeight-imageClearance),
		StripesTop: math.Min(stripes, m.ViewportHeight-stripeClearance),
	}
}
