package sitepatch

import (
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrMarkerNotFound is returned when the base page lacks </header> or <footer.
var ErrMarkerNotFound = errors.New("[STDIORPC] splice marker not found")

const (
	headerEnd   = "</header>"
	footerStart = "<footer"
)

var (
	titleRe       = regexp.MustCompile(`<title>.*?</title>`)
	descriptionRe = regexp.MustCompile(`<meta name="description"\s+content=".*?">`)
)

// Page is the content spliced into a base page. Title and Description are
// plain text; Body is inserted as HTML.
type Page struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Body        string `mapstructure:"body"`
}

// Splice keeps base up to and including the first </header> and from the
// first <footer onwards, and puts page.Body between them. The head's title and
// description meta are replaced when page sets them.
func Splice(base string, page Page) (string, error) {
	top, bottom, err := cut(base)
	if err != nil {
		return "", err
	}

	if page.Title != "" {
		title := "<title>" + html.EscapeString(page.Title) + "</title>"
		top = titleRe.ReplaceAllLiteralString(top, title)
	}
	if page.Description != "" {
		meta := `<meta name="description" content="` + html.EscapeString(page.Description) + `">`
		top = descriptionRe.ReplaceAllLiteralString(top, meta)
	}

	return top + page.Body + bottom, nil
}

func cut(base string) (string, string, error) {
	end := strings.Index(base, headerEnd)
	if end < 0 {
		return "", "", errors.Wrapf(ErrMarkerNotFound, "%s", headerEnd)
	}
	end += len(headerEnd)

	start := strings.Index(base[end:], footerStart)
	if start < 0 {
		return "", "", errors.Wrapf(ErrMarkerNotFound, "%s", footerStart)
	}
	start += end

	return base[:end], base[start:], nil
}

// SpliceFile reads basePath, splices page into it and writes the result to outPath.
func SpliceFile(basePath, outPath string, page Page) error {
	base, err := os.ReadFile(basePath)
	if err != nil {
		return errors.Wrap(err, "read base page")
	}

	out, err := Splice(string(base), page)
	if err != nil {
		return errors.Wrapf(err, "splice %s", basePath)
	}

	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		return errors.Wrap(err, "write page")
	}
	return nil
}
