// Package utils holds helpers shared by the command line and the UI.
package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/readaloud/internal/page"
)

var markdownExtensions = []string{
	".md", ".mdown", ".mkdn", ".mkd", ".markdown",
}

var frontmatterBoundaries = regexp.MustCompile(`(?m)^---\r?\n`)

// RemoveFrontmatter removes the front matter header of a markdown file.
func RemoveFrontmatter(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("---")) {
		return content
	}
	if bounds := frontmatterBoundaries.FindAllIndex(content, 2); len(bounds) == 2 && bounds[0][0] == 0 {
		return content[bounds[1][1]:]
	}
	return content
}

// ExpandPath expands tilde and all environment variables from the given
// path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// IsMarkdownFile returns whether the filename has a markdown extension.
func IsMarkdownFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, v := range markdownExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

// GlamourStyle returns a glamour.TermRendererOption based on the given
// style: a built-in style name, "auto", or the path of a JSON style.
func GlamourStyle(style string) glamour.TermRendererOption {
	if style == styles.AutoStyle {
		return glamour.WithAutoStyle()
	}
	if _, ok := styles.DefaultStyles[style]; ok {
		return glamour.WithStandardStyle(style)
	}
	return glamour.WithStylePath(ExpandPath(style))
}

// ParseDocument reads a page from r. Markdown is detected by the name's
// extension; anything else is parsed as HTML.
func ParseDocument(r io.Reader, name string) (*page.Document, error) {
	if !IsMarkdownFile(name) {
		return page.Parse(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", name, err)
	}
	return page.ParseMarkdown(bytes.NewReader(RemoveFrontmatter(b)))
}

// LoadDocument reads and parses a local file.
func LoadDocument(path string) (*page.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return ParseDocument(f, path)
}
