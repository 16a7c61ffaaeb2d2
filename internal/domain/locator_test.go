package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocator_Summary(t *testing.T) {
	tests := []struct {
		name    string
		locator Locator
		want    string
	}{
		{
			name: "title with progressions",
			locator: Locator{
				Href:  "ch3.xhtml",
				Title: "Chapter 3",
				Locations: Locations{
					Fragments:        []string{"p42"},
					Progression:      Float64Ptr(0.42),
					TotalProgression: Float64Ptr(0.17),
				},
			},
			want: "Chapter 3#p42 @ 42% (book 17%)",
		},
		{
			name: "href fallback without title",
			locator: Locator{
				Href: "ch3.xhtml",
				Locations: Locations{
					Progression: Float64Ptr(0.5),
				},
			},
			want: "ch3.xhtml @ 50%",
		},
		{
			name:    "empty locator",
			locator: Locator{},
			want:    "unknown location",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.locator.Summary())
		})
	}
}

func TestLocator_Fragment(t *testing.T) {
	l := Locator{Locations: Locations{Fragments: []string{"p1", "p2"}}}
	assert.Equal(t, "p1", l.Fragment())

	assert.Equal(t, "", Locator{}.Fragment())
}
