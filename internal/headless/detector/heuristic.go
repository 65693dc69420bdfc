// Package detector spots product pages that are rendered by client-side
// script, where a plain fetch sees an app shell instead of the product.
package detector

import (
	"bytes"
	"net/http"
)

const defaultShellThreshold = 2048

// Heuristic flags script-rendered pages with a few rule-based checks.
type Heuristic struct {
	// ShellThreshold is the body size under which a script-heavy page is
	// treated as an app shell.
	ShellThreshold int
}

// NewHeuristic creates a detector. A zero threshold selects 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultShellThreshold
	}
	return &Heuristic{ShellThreshold: threshold}
}

var appShellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

// ScriptRendered reports whether a successful page looks like it needs a
// browser to show its content. Non-200 pages are never flagged.
func (h *Heuristic) ScriptRendered(statusCode int, body []byte) bool {
	if statusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if len(lower) < h.ShellThreshold && scriptShare(lower) >= 25 {
		return true
	}
	for _, marker := range appShellMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of a lower-cased document covered by
// <script> elements. Unterminated tags run to the end of the document.
func scriptShare(doc []byte) int {
	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
		covered  int
		pos      int
	)
	for pos < len(doc) {
		i := bytes.Index(doc[pos:], openTag)
		if i < 0 {
			break
		}
		start := pos + i
		end := len(doc)
		if gt := bytes.IndexByte(doc[start:], '>'); gt >= 0 {
			body := start + gt + 1
			if j := bytes.Index(doc[body:], closeTag); j >= 0 {
				end = body + j + len(closeTag)
			}
		}
		covered += end - start
		pos = end
	}
	if len(doc) == 0 {
		return 0
	}
	return covered * 100 / len(doc)
}
