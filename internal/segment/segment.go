package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/summarizer/internal/apperr"
)

// qaPatterns are the section headings that mark the start of the Q&A
// portion of a call transcript. Longest first so the word-count rule
// removes the maximal match.
var qaPatterns = func() []string {
	p := []string{
		"questions and answers",
		"question and answer",
		"questions and answer",
		"question and answers",
		"questions & answers",
		"question & answer",
		"question & answers",
		"questions & answer",
	}
	sort.Slice(p, func(a, b int) bool { return len(p[a]) > len(p[b]) })
	return p
}()

// Result is a transcript segmented into its two halves.
type Result struct {
	Presentation string
	QA           string
	Pages        int
	BodySize     float64
}

// Segmenter validates uploaded PDFs and splits them into Presentation and
// Q&A sections using the document's typography.
type Segmenter struct {
	MaxBytes int64
}

// New creates a segmenter enforcing the given upload size limit.
func New(maxBytes int64) *Segmenter {
	return &Segmenter{MaxBytes: maxBytes}
}

// Process validates the file at path and segments it. filename is the
// client-supplied name, used only for the extension check.
func (s *Segmenter) Process(path, filename string) (*Result, error) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".pdf" {
		return nil, apperr.Newf(apperr.CodeInvalidFileType, "only PDF files are accepted, got %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePDFProcessingError, err)
	}
	if s.MaxBytes > 0 && info.Size() > s.MaxBytes {
		return nil, apperr.Newf(apperr.CodeFileTooLarge,
			"file is %d bytes, limit is %d", info.Size(), s.MaxBytes)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePDFProcessingError, err)
	}
	if !mtype.Is("application/pdf") {
		return nil, apperr.Newf(apperr.CodeInvalidFileType, "not a PDF document (%s)", mtype.String())
	}

	// structural preflight before any text extraction
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePDFOpenError, err)
	}
	if pageCount == 0 {
		return nil, apperr.New(apperr.CodePDFOpenError, "document has no pages")
	}

	pageTexts, err := extractPageTexts(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePDFProcessingError, err)
	}
	fontPages, err := readLines(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePDFProcessingError, err)
	}

	n := len(pageTexts)
	if len(fontPages) < n {
		n = len(fontPages)
	}
	if n == 0 {
		return nil, apperr.New(apperr.CodePDFProcessingError, "no extractable pages")
	}
	pageTexts = pageTexts[:n]
	fontPages = fontPages[:n]

	body := bodyFontSize(fontPages)
	log.Debug().Int("pages", n).Float64("body_font_size", body).Str("file", filename).Msg("pdf typography analyzed")

	splitPage, pattern := findHeadingPage(fontPages, body)
	if splitPage < 0 {
		return nil, apperr.New(apperr.CodeNoQATranscript, "no Q&A section found in transcript")
	}

	presentation, qa := splitAt(pageTexts, splitPage)

	// a last page set entirely below body size is boilerplate, not transcript
	if n >= 2 && maxPageSize(fontPages[n-1]) > 0 && maxPageSize(fontPages[n-1]) < body {
		presentation, qa = trimTail(presentation, qa, pageTexts[n-1])
	}

	presentation = strings.TrimSpace(presentation)
	qa = strings.TrimSpace(qa)
	if qa == "" {
		return nil, apperr.New(apperr.CodeNoQATranscript, "Q&A section is empty")
	}

	log.Info().
		Int("pages", n).
		Int("split_page", splitPage+1).
		Str("heading", pattern).
		Int("presentation_chars", len(presentation)).
		Int("qa_chars", len(qa)).
		Msg("transcript segmented")

	return &Result{Presentation: presentation, QA: qa, Pages: n, BodySize: body}, nil
}

func extractPageTexts(path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	texts := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// findHeadingPage scans pages from the end of the document looking for a
// line that both names the Q&A section and is typeset as a heading. Returns
// the page index and the matched pattern, or (-1, "").
func findHeadingPage(pages [][]line, body float64) (int, string) {
	for i := len(pages) - 1; i >= 0; i-- {
		for _, ln := range pages[i] {
			pattern, ok := matchQAPattern(ln.text())
			if !ok {
				continue
			}
			if headingQualifies(&ln, body, pattern) {
				return i, pattern
			}
		}
	}
	return -1, ""
}

// matchQAPattern returns the longest Q&A heading pattern contained in s.
func matchQAPattern(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, p := range qaPatterns {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// headingQualifies decides whether a pattern-bearing line is really the
// section heading: set larger than body text, or at body size but bold, or
// at body size with almost nothing else on the line.
func headingQualifies(ln *line, body float64, pattern string) bool {
	max := ln.maxSize()
	if max > body {
		return true
	}
	if max != body {
		return false
	}
	if ln.boldAt(body) {
		return true
	}
	lower := strings.ToLower(ln.text())
	idx := strings.Index(lower, pattern)
	rest := lower[:idx] + lower[idx+len(pattern):]
	return len(strings.Fields(rest)) <= 3
}

// splitAt divides the page texts at the earliest heading occurrence on the
// split page. Text before the heading belongs to the presentation.
func splitAt(pageTexts []string, splitPage int) (string, string) {
	var pre, post strings.Builder
	for i := 0; i < splitPage; i++ {
		pre.WriteString(pageTexts[i])
		pre.WriteString("\n")
	}

	pageText := pageTexts[splitPage]
	idx := earliestPatternIndex(pageText)
	if idx < 0 {
		// font and text extractors disagree on this page; keep it whole
		idx = 0
	}
	pre.WriteString(pageText[:idx])
	post.WriteString(pageText[idx:])

	for i := splitPage + 1; i < len(pageTexts); i++ {
		post.WriteString("\n")
		post.WriteString(pageTexts[i])
	}
	return pre.String(), post.String()
}

// earliestPatternIndex finds the first occurrence of any Q&A pattern.
func earliestPatternIndex(text string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, p := range qaPatterns {
		if i := strings.Index(lower, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// trimTail removes the final page's text from whichever section ends with it.
func trimTail(presentation, qa, lastPage string) (string, string) {
	tail := strings.TrimSpace(lastPage)
	if tail == "" {
		return presentation, qa
	}
	if t := strings.TrimSpace(qa); strings.HasSuffix(t, tail) {
		return presentation, strings.TrimSpace(strings.TrimSuffix(t, tail))
	}
	if t := strings.TrimSpace(presentation); strings.HasSuffix(t, tail) {
		return strings.TrimSpace(strings.TrimSuffix(t, tail)), qa
	}
	return presentation, qa
}
