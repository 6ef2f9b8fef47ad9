// Package pdfinfo provides best-effort, advisory introspection of an
// uploaded PDF. It exists purely to put a page count in the logs; a parse
// failure is swallowed, never surfaced as a rejection, because PDF
// validation beyond "non-empty body" is explicitly out of scope for intake.
package pdfinfo

import (
	"github.com/ledongthuc/pdf"
)

// PageCount opens path with a pure-Go PDF reader and returns its page
// count. Callers should treat a non-nil error as "couldn't tell, move on"
// rather than as a reason to reject anything.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return r.NumPage(), nil
}
