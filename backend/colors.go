/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package backend

import "strings"

var circles = map[string]string{
	"red":    "🔴",
	"blue":   "🔵",
	"green":  "🟢",
	"yellow": "🟡",
	"purple": "🟣",
	"orange": "🟠",
	"brown":  "🟤",
	"black":  "⚫",
	"white":  "⚪",
}

const unknownCircle = "⭕"

func colorCircle(colour string) string {
	if c, ok := circles[strings.ToLower(strings.TrimSpace(colour))]; ok {
		return c
	}

	return unknownCircle
}

// ColorCircles renders a team's two colours as emoji circles.
func ColorCircles(colour1, colour2 string) string {
	return colorCircle(colour1) + colorCircle(colour2)
}
