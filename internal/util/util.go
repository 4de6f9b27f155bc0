// Package util provides content hashing and front matter parsing.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"
	"github.com/mmarkdown/mmark/v2/mast"
)

var ErrNoFrontMatter = errors.New("invalid front matter format")

// FrontMatter is the %%% delimited TOML block at the top of a markdown
// document.
type FrontMatter struct {
	*mast.TitleData
	Tags    []string `toml:"tags"`
	Publish bool     `toml:"publish"`

	// Consumed is the byte offset of the document body in the normalized
	// input.
	Consumed int `toml:"-"`
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

func normalize(md []byte) []byte {
	md = markdown.NormalizeNewlines(md)
	return bytes.TrimLeft(md, "\n \t\r")
}

func GetFrontMatter(md []byte) (*FrontMatter, error) {
	return parseFrontMatter(normalize(md))
}

func parseFrontMatter(md []byte) (*FrontMatter, error) {
	delimiter := []byte("%%%")

	if len(md) < 2*len(delimiter) {
		return nil, ErrNoFrontMatter
	}

	first := bytes.Index(md[:len(delimiter)+1], delimiter)
	if first == -1 {
		return nil, ErrNoFrontMatter
	}

	second := bytes.Index(md[first+len(delimiter):], delimiter)
	if second == -1 {
		return nil, ErrNoFrontMatter
	}

	end := second + 2*len(delimiter) + 1
	if end > len(md) {
		return nil, ErrNoFrontMatter
	}

	frontMatter := md[len(delimiter) : end-len(delimiter)-1]
	info := &FrontMatter{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(frontMatter), info); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if info.Language == "" {
		info.Language = "en"
	}
	info.Consumed = end

	return info, nil
}

// SplitFrontMatter separates the front matter from the document body. When
// md has no valid front matter, info is nil and body is md unchanged.
func SplitFrontMatter(md []byte) (info *FrontMatter, body []byte) {
	normalized := normalize(md)

	info, err := parseFrontMatter(normalized)
	if err != nil {
		return nil, md
	}
	return info, bytes.TrimLeft(normalized[info.Consumed:], "\n")
}
