package state

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/notesync/internal/model"
)

// foldText normalizes to NFC and case-folds, so "Ärger" matches "ärger" no
// matter how either was composed.
func foldText(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// FilterNotes returns the notes whose title or body contains query,
// ignoring case. A blank query returns notes unchanged.
func FilterNotes(notes []model.Note, query string) []model.Note {
	q := foldText(strings.TrimSpace(query))
	if q == "" {
		return notes
	}
	out := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(foldText(n.Title), q) || strings.Contains(foldText(n.Body), q) {
			out = append(out, n)
		}
	}
	return out
}
