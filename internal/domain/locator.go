package domain

import (
	"fmt"
	"strings"
)

// Locator is the cross-system position representation exchanged with
// the renderer, the sync engine, and the remote server. JSON follows
// the Readium locator shape.
type Locator struct {
	Href      string    `json:"href"`
	Type      string    `json:"type"`
	Title     string    `json:"title,omitempty"`
	Locations Locations `json:"locations"`
}

// Locations carries the fine-grained position inside the resource.
// Progression is the fraction [0,1] through the section;
// TotalProgression the fraction through the whole book. Fragments
// holds anchor ids for audio/text alignment.
type Locations struct {
	Fragments        []string `json:"fragments,omitempty"`
	Progression      *float64 `json:"progression,omitempty"`
	TotalProgression *float64 `json:"totalProgression,omitempty"`
}

// Fragment returns the primary anchor id, if any.
func (l Locator) Fragment() string {
	if len(l.Locations.Fragments) == 0 {
		return ""
	}
	return l.Locations.Fragments[0]
}

// Summary renders a short human-readable description for history
// display, like "Chapter 3 @ 42% (book 17%)".
func (l Locator) Summary() string {
	var b strings.Builder

	switch {
	case l.Title != "":
		b.WriteString(l.Title)
	case l.Href != "":
		b.WriteString(l.Href)
	default:
		b.WriteString("unknown location")
	}

	if f := l.Fragment(); f != "" {
		b.WriteString("#")
		b.WriteString(f)
	}

	if l.Locations.Progression != nil {
		fmt.Fprintf(&b, " @ %.0f%%", *l.Locations.Progression*100)
	}
	if l.Locations.TotalProgression != nil {
		fmt.Fprintf(&b, " (book %.0f%%)", *l.Locations.TotalProgression*100)
	}

	return b.String()
}

// Float64Ptr returns a pointer to v, for optional progression fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
