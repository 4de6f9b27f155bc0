package model

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Draft is the in-progress editable entity. ID is empty until the first
// successful save.
type Draft struct {
	ID     PostID   `json:"id,omitempty"`
	Title  string   `json:"title" validate:"notblank"`
	Body   string   `json:"content" validate:"notblank"`
	Tags   []string `json:"tags" validate:"dive,tagword"`
	Status Status   `json:"status,omitempty"`
}

func (d Draft) Clone() Draft {
	d.Tags = slices.Clone(d.Tags)
	return d
}

// IsEmpty reports whether neither the title nor the body has visible text.
func (d Draft) IsEmpty() bool {
	return IsBlank(d.Title) && IsBlank(d.Body)
}

func (d Draft) IsPublished() bool {
	return d.Status == StatusPublished
}

// IsBlank reports whether s has no visible text. HTML bodies produced by rich
// text widgets (e.g. "<p><br></p>") count as blank.
func IsBlank(s string) bool {
	return strings.TrimSpace(PlainText(s)) == ""
}

// PlainText returns the visible text of s, stripping markup when s looks
// like HTML.
func PlainText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

// Excerpt returns at most n runes of the visible text of body.
func Excerpt(body string, n int) string {
	text := strings.Join(strings.Fields(PlainText(body)), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "…"
}

// ParseTags splits comma-separated input into trimmed, non-empty labels.
func ParseTags(s string) []string {
	tags := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// CleanTags trims every label and drops the empty ones.
func CleanTags(tags []string) []string {
	return ParseTags(strings.Join(tags, ","))
}
