package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPatch_JSONDistinguishesUntouchedAndNull(t *testing.T) {
	done := true
	patch := TaskPatch{
		Completed:  &done,
		ReminderID: Null[string](),
	}

	data, err := json.Marshal(patch)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "is_completed")
	assert.Contains(t, raw, "gcal_event_id")
	assert.Equal(t, "null", string(raw["gcal_event_id"]))
	assert.NotContains(t, raw, "due_at", "untouched slot must be omitted")
	assert.NotContains(t, raw, "label")

	var decoded TaskPatch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.ReminderID.IsNull())
	assert.False(t, decoded.DueAt.IsSet())
	require.NotNil(t, decoded.Completed)
	assert.True(t, *decoded.Completed)
}

func TestTaskPatch_Apply(t *testing.T) {
	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ref := "evt-1"
	task := Task{ID: "t1", Label: "buy milk", DueAt: &due, ReminderID: &ref}

	done := true
	got := TaskPatch{Completed: &done, ReminderID: Null[string]()}.Apply(task)

	assert.True(t, got.Completed)
	assert.Nil(t, got.ReminderID)
	require.NotNil(t, got.DueAt, "untouched due date survives")
	assert.Equal(t, due, *got.DueAt)
	assert.Equal(t, "buy milk", got.Label)
}

func TestNotePatch_Apply(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	title := "Groceries"
	note := Note{ID: "n1", Title: "Untitled Note", Body: "milk", UpdatedAt: stamp}

	got := NotePatch{Title: &title}.Apply(note)

	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "milk", got.Body)
	assert.Equal(t, stamp, got.UpdatedAt, "stamp is left to the backend")
	assert.True(t, NotePatch{}.IsEmpty())
}

func TestPreferencesUpdate_BackgroundsAreExclusive(t *testing.T) {
	prefs := DefaultPreferences("u1")

	prefs = PreferencesUpdate{BackgroundColor: Set("#101010")}.Apply(prefs)
	require.NotNil(t, prefs.BackgroundColor)
	assert.Nil(t, prefs.BackgroundGradient)

	prefs = PreferencesUpdate{BackgroundGradient: Set("linear-gradient(#000, #fff)")}.Apply(prefs)
	assert.Nil(t, prefs.BackgroundColor, "gradient clears color")
	require.NotNil(t, prefs.BackgroundGradient)

	dark := ThemeDark
	prefs = PreferencesUpdate{Theme: &dark}.Apply(prefs)
	assert.Equal(t, ThemeDark, prefs.Theme)
	assert.NotNil(t, prefs.BackgroundGradient, "theme change keeps background")
}

func TestParseTheme(t *testing.T) {
	theme, err := ParseTheme("")
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	theme, err = ParseTheme("dark")
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	_, err = ParseTheme("sepia")
	assert.Error(t, err)
}

func TestDecode_RoundTripsChange(t *testing.T) {
	note := Note{ID: "n1", OwnerID: "u1", Title: "a"}
	change, err := NewChange(TableNotes, OpDelete, "u1", nil, &note)
	require.NoError(t, err)

	ev, err := Decode[Note](change)
	require.NoError(t, err)
	assert.Equal(t, OpDelete, ev.Op)
	assert.Nil(t, ev.New)
	require.NotNil(t, ev.Record())
	assert.Equal(t, "n1", ev.Record().ID)
}

func TestTopic_Pattern(t *testing.T) {
	assert.Equal(t, "notes/u1", Topic{Table: TableNotes, OwnerID: "u1"}.Pattern())
	assert.Equal(t, "*/u1", Topic{OwnerID: "u1"}.Pattern())
	assert.Equal(t, "tasks/*", Topic{Table: TableTasks}.Pattern())
}

func TestTopic_PatternMatchesOwnerLiterally(t *testing.T) {
	for _, owner := range []string{"u*", "u?", "[u]1", "{u1,u2}", "**", `u\1`} {
		pattern := Topic{Table: TableNotes, OwnerID: owner}.Pattern()
		require.True(t, doublestar.ValidatePattern(pattern), pattern)

		ok, err := doublestar.Match(pattern, "notes/u1")
		require.NoError(t, err)
		assert.False(t, ok, "owner %q matched another owner's topic", owner)

		ok, err = doublestar.Match(pattern, Topic{Table: TableNotes, OwnerID: owner}.String())
		require.NoError(t, err)
		assert.True(t, ok, "owner %q does not match its own topic", owner)
	}
}
