package segment

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// span is a run of characters sharing one font face and size on a line.
type span struct {
	text string
	size float64
	font string
}

// line groups the spans sharing one baseline on a page.
type line struct {
	y     float64
	spans []span
}

func (l *line) text() string {
	var b strings.Builder
	for _, s := range l.spans {
		b.WriteString(s.text)
	}
	return b.String()
}

func (l *line) maxSize() float64 {
	max := 0.0
	for _, s := range l.spans {
		if s.size > max {
			max = s.size
		}
	}
	return round1(max)
}

// boldAt reports whether any span at the given size uses a bold or heavy face.
func (l *line) boldAt(size float64) bool {
	for _, s := range l.spans {
		if round1(s.size) != size {
			continue
		}
		f := strings.ToLower(s.font)
		if strings.Contains(f, "bold") || strings.Contains(f, "heavy") {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// readLines extracts per-page lines with font information. Pages whose
// content cannot be decoded come back empty rather than failing the whole
// document.
func readLines(path string) ([][]line, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([][]line, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, nil)
			continue
		}
		pages = append(pages, groupLines(page.Content().Text))
	}
	return pages, nil
}

// groupLines buckets positioned text fragments by baseline and merges
// adjacent fragments with the same face and size into spans.
func groupLines(texts []pdf.Text) []line {
	byY := make(map[float64][]pdf.Text)
	for _, t := range texts {
		y := round1(t.Y)
		byY[y] = append(byY[y], t)
	}

	ys := make([]float64, 0, len(byY))
	for y := range byY {
		ys = append(ys, y)
	}
	// PDF y grows upward; read top to bottom
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))

	lines := make([]line, 0, len(ys))
	for _, y := range ys {
		frags := byY[y]
		sort.Slice(frags, func(a, b int) bool { return frags[a].X < frags[b].X })

		var ln line
		ln.y = y
		for _, t := range frags {
			n := len(ln.spans)
			if n > 0 && ln.spans[n-1].font == t.Font && ln.spans[n-1].size == t.FontSize {
				ln.spans[n-1].text += t.S
				continue
			}
			ln.spans = append(ln.spans, span{text: t.S, size: t.FontSize, font: t.Font})
		}
		lines = append(lines, ln)
	}
	return lines
}

// bodyFontSize estimates the document's body text size: the mode of all
// positive span sizes rounded to one decimal. When no single mode exists
// the median is used instead.
func bodyFontSize(pages [][]line) float64 {
	var sizes []float64
	for _, lines := range pages {
		for _, ln := range lines {
			for _, s := range ln.spans {
				if s.size > 0 {
					sizes = append(sizes, round1(s.size))
				}
			}
		}
	}
	if len(sizes) == 0 {
		return 0
	}

	counts := make(map[float64]int)
	for _, s := range sizes {
		counts[s]++
	}
	best, bestCount, ties := 0.0, 0, 0
	for s, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, ties = s, c, 1
		case c == bestCount:
			ties++
		}
	}
	if bestCount > 1 && ties == 1 {
		return best
	}

	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return round1((sizes[mid-1] + sizes[mid]) / 2)
}

// maxPageSize returns the largest rounded span size on a page.
func maxPageSize(lines []line) float64 {
	max := 0.0
	for _, ln := range lines {
		if s := ln.maxSize(); s > max {
			max = s
		}
	}
	return max
}
