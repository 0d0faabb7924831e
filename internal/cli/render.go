package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/roach88/notesync/internal/model"
	"github.com/roach88/notesync/internal/view"
)

const timeLayout = "2006-01-02 15:04"

// noteSummary is one row of `notes list`.
type noteSummary struct {
	model.Note
	Tasks model.TaskCounts `json:"tasks"`
}

type noteList []noteSummary

func (l noteList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No notes.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTASKS\tUPDATED")
	for _, n := range l {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", n.ID, n.Title, n.Tasks.Completed, n.Tasks.Total, n.UpdatedAt.Format(timeLayout))
	}
	return tw.Flush()
}

// noteDetail is a single note with its checklist.
type noteDetail struct {
	Note  model.Note   `json:"note"`
	Tasks []model.Task `json:"tasks"`
}

func (d noteDetail) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%s  %s\n", d.Note.ID, d.Note.Title)
	if d.Note.Color != "" {
		fmt.Fprintf(w, "color: %s\n", d.Note.Color)
	}
	fmt.Fprintf(w, "updated: %s\n", d.Note.UpdatedAt.Format(timeLayout))
	if d.Note.Body != "" {
		fmt.Fprintf(w, "\n%s\n", d.Note.Body)
	}
	if len(d.Tasks) > 0 {
		fmt.Fprintln(w)
		return taskList(d.Tasks).RenderText(w)
	}
	return nil
}

type taskList []model.Task

func (l taskList) RenderText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No tasks.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, t := range l {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, checkbox(t.Completed), t.Label, dueText(t))
	}
	return tw.Flush()
}

type taskDetail model.Task

func (t taskDetail) RenderText(w io.Writer) error {
	task := model.Task(t)
	_, err := fmt.Fprintf(w, "%s %s  %s  %s\n", task.ID, checkbox(task.Completed), task.Label, dueText(task))
	return err
}

type prefsView model.Preferences

func (p prefsView) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "theme: %s\n", p.Theme)
	switch {
	case p.BackgroundColor != nil:
		fmt.Fprintf(w, "background: color %s\n", *p.BackgroundColor)
	case p.BackgroundGradient != nil:
		fmt.Fprintf(w, "background: gradient %s\n", *p.BackgroundGradient)
	default:
		fmt.Fprintln(w, "background: default")
	}
	return nil
}

// changeLine is one event printed by `watch`.
type changeLine struct {
	model.Change
	RecordID string `json:"record_id"`
}

func newChangeLine(c model.Change) changeLine {
	var rec struct {
		ID string `json:"id"`
	}
	raw := c.New
	if len(raw) == 0 {
		raw = c.Old
	}
	_ = json.Unmarshal(raw, &rec)
	return changeLine{Change: c, RecordID: rec.ID}
}

func (c changeLine) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "#%d %s %s %s\n", c.Seq, c.Table, c.Op, c.RecordID)
	return err
}

// editorView renders an editor buffer for `edit`.
type editorView view.EditorState

func (v editorView) RenderText(w io.Writer) error {
	dirty := ""
	if v.Dirty {
		dirty = " *"
	}
	fmt.Fprintf(w, "== %s%s  (%d/%d done)\n", v.Title, dirty, v.Counts.Completed, v.Counts.Total)
	for _, line := range strings.Split(v.Body, "\n") {
		if line != "" {
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
	if len(v.Tasks) > 0 {
		return taskList(v.Tasks).RenderText(w)
	}
	return nil
}

// deleted confirms a removal.
type deleted struct {
	Kind string `json:"kind"`
	ID   string `json:"deleted"`
}

func (d deleted) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Deleted %s %s\n", d.Kind, d.ID)
	return err
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// dueText shows the due date in UTC, marking tasks that hold a reminder.
func dueText(t model.Task) string {
	if t.DueAt == nil {
		return "-"
	}
	s := "due " + t.DueAt.UTC().Format(timeLayout) + "Z"
	if t.HasReminder() {
		s += " +reminder"
	}
	return s
}
