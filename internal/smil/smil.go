// Package smil parses EPUB media-overlay documents into narration
// timing entries.
package smil

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/storylineapp/storyline-core/internal/domain"
)

// The subset of SMIL 3.0 that media overlays use: a body of nested
// seq/par elements where each par pairs one text anchor with one
// audio clip.

type document struct {
	XMLName xml.Name `xml:"smil"`
	Body    seq      `xml:"body"`
}

type seq struct {
	TextRef string `xml:"textref,attr"`
	Pars    []par  `xml:"par"`
	Seqs    []seq  `xml:"seq"`
}

type par struct {
	ID    string  `xml:"id,attr"`
	Text  textRef `xml:"text"`
	Audio clip    `xml:"audio"`
}

type textRef struct {
	Src string `xml:"src,attr"`
}

type clip struct {
	Src       string `xml:"src,attr"`
	ClipBegin string `xml:"clipBegin,attr"`
	ClipEnd   string `xml:"clipEnd,attr"`
}

// Parse reads one media-overlay document and returns its narration
// entries in document order. CumulativeAtEnd is left zero; call
// FillCumulative once all sections are assembled.
//
// Pars without both a text anchor and an audio clip are skipped, as
// are clips whose begin does not precede their end. Unparseable clock
// values fail the whole document.
func Parse(r io.Reader) ([]domain.NarrationEntry, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode smil: %w", err)
	}

	var entries []domain.NarrationEntry
	if err := collect(doc.Body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func collect(s seq, out *[]domain.NarrationEntry) error {
	for _, p := range s.Pars {
		if p.Text.Src == "" || p.Audio.Src == "" {
			continue
		}

		begin, err := ParseClock(p.Audio.ClipBegin)
		if err != nil {
			return fmt.Errorf("par %q clipBegin: %w", p.ID, err)
		}
		end, err := ParseClock(p.Audio.ClipEnd)
		if err != nil {
			return fmt.Errorf("par %q clipEnd: %w", p.ID, err)
		}
		if begin >= end {
			continue
		}

		href, fragment := splitHref(p.Text.Src)
		*out = append(*out, domain.NarrationEntry{
			AnchorID:  fragment,
			Href:      href,
			AudioFile: p.Audio.Src,
			Begin:     begin,
			End:       end,
		})
	}

	for _, nested := range s.Seqs {
		if err := collect(nested, out); err != nil {
			return err
		}
	}
	return nil
}

// splitHref separates "ch1.xhtml#p4" into path and fragment.
func splitHref(src string) (href, fragment string) {
	if i := strings.IndexByte(src, '#'); i >= 0 {
		return src[:i], src[i+1:]
	}
	return src, ""
}

// ParseClock parses a SMIL clock value into seconds. Accepted forms:
// "12.345s", "1500ms", "2min", "1.5h", "0:01:02.5", "01:02" and bare
// seconds like "12.345".
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty clock value")
	}

	// Clock-value form with colons: [HH:]MM:SS[.fraction]
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("malformed clock value %q", s)
		}
		var total float64
		for _, part := range parts {
			v, err := strconv.ParseFloat(part, 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("malformed clock value %q", s)
			}
			total = total*60 + v
		}
		return total, nil
	}

	// Timecount form with a metric suffix.
	for _, m := range []struct {
		suffix string
		scale  float64
	}{
		{"ms", 0.001},
		{"s", 1},
		{"min", 60},
		{"h", 3600},
	} {
		if strings.HasSuffix(s, m.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, m.suffix), 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("malformed clock value %q", s)
			}
			return v * m.scale, nil
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	return v, nil
}

// FillCumulative assigns book-level CumulativeAtEnd across sections in
// book order. The running total carries over narration gaps so that
// elapsed math can subtract a section base cheaply.
func FillCumulative(sections domain.Sections) domain.Sections {
	var total float64
	for si := range sections {
		for ei := range sections[si].Entries {
			e := &sections[si].Entries[ei]
			total += e.End - e.Begin
			e.CumulativeAtEnd = total
		}
	}
	return sections
}
