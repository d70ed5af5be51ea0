package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const scheduleJSON = `{
  "weekday": {
    "layer1": {
      "name": "Primary",
      "start": "2025-09-25T10:00:00+05:30",
      "end": "2025-09-25T19:00:00+05:30",
      "hours": 9,
      "rotationPeriodDays": 2,
      "members": ["alice", "bob"]
    },
    "broken": {
      "name": "No members",
      "start": "2025-09-25T10:00:00+05:30",
      "end": "2025-09-25T19:00:00+05:30",
      "hours": 9,
      "rotationPeriodDays": 1,
      "members": []
    }
  },
  "weekend": {
    "weekend1": {
      "name": "Weekend",
      "start": "2025-09-27T10:00:00+05:30",
      "end": "2025-09-27T10:00:00+05:30",
      "hours": 48,
      "rotationPeriodDays": 1,
      "members": ["xavier", "yuki"]
    }
  }
}`

func TestLoadScheduleSkipsInvalidLayers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schedule.json", scheduleJSON)

	src := NewFileSource(path, "", "+05:30", nil)
	doc, err := src.LoadSchedule()
	require.NoError(t, err)

	require.Len(t, doc.Weekday, 1)
	assert.Equal(t, "layer1", doc.Weekday[0].Key)
	assert.Equal(t, models.KindWeekday, doc.Weekday[0].Kind)
	require.Len(t, doc.Weekend, 1)
	assert.Equal(t, models.KindWeekend, doc.Weekend[0].Kind)
}

func TestLoadScheduleMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.json"), "", "+05:30", nil)
	_, err := src.LoadSchedule()
	assert.True(t, appErrors.Is(err, appErrors.ErrSourceUnavailable))
}

func TestLoadScheduleAppliesDefaultOffset(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schedule.json", `{
  "weekday": {
    "layer1": {
      "name": "Primary",
      "start": "2025-09-25T10:00:00",
      "end": "2025-09-25T19:00:00",
      "hours": 9,
      "rotationPeriodDays": 2,
      "members": ["alice"]
    }
  }
}`)

	src := NewFileSource(path, "", "+05:30", nil)
	doc, err := src.LoadSchedule()
	require.NoError(t, err)
	require.Len(t, doc.Weekday, 1)

	_, offset := doc.Weekday[0].Start.Zone()
	assert.Equal(t, 5*3600+30*60, offset)
}

func TestLoadOverridesNormalizesBothFormats(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "overrides.json", `{
  "2025-09-29": {"layer1": "carol"},
  "Mon Sep 29 2025-layer2": {
    "person": "dave",
    "reason": "vacation cover",
    "originalPerson": "erin",
    "timestamp": 1758988800000
  }
}`)

	src := NewFileSource("", path, "+05:30", nil)
	set, err := src.LoadOverrides()
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	structured, ok := set.Lookup("2025-09-29", "layer1")
	require.True(t, ok)
	assert.Equal(t, "carol", structured.Person)

	legacy, ok := set.Lookup("2025-09-29", "layer2")
	require.True(t, ok)
	assert.Equal(t, "dave", legacy.Person)
	assert.Equal(t, "vacation cover", legacy.Reason)
	require.NotNil(t, legacy.OriginalPerson)
	assert.Equal(t, "erin", *legacy.OriginalPerson)
}

func TestLoadOverridesStructuredWinsCollision(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "overrides.json", `{
  "2025-09-29": {"layer1": "carol"},
  "Mon Sep 29 2025-layer1": {"person": "dave"}
}`)

	src := NewFileSource("", path, "+05:30", nil)
	set, err := src.LoadOverrides()
	require.NoError(t, err)

	ov, ok := set.Lookup("2025-09-29", "layer1")
	require.True(t, ok)
	assert.Equal(t, "carol", ov.Person)
}

func TestLoadOverridesMissingFileIsEmpty(t *testing.T) {
	src := NewFileSource("", filepath.Join(t.TempDir(), "absent.json"), "+05:30", nil)
	set, err := src.LoadOverrides()
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestDocumentStoreKeepsLastGoodOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "schedule.json", scheduleJSON)

	src := NewFileSource(path, "", "+05:30", nil)
	store := NewDocumentStore(src, nil)
	require.NoError(t, store.Reload())

	before, err := store.Current()
	require.NoError(t, err)

	// Corrupt the file; reload fails but the previous document stays live.
	writeFile(t, dir, "schedule.json", "{not json")
	require.Error(t, store.Reload())

	after, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDocumentStoreWithoutLoad(t *testing.T) {
	store := NewDocumentStore(NewFileSource("nope.json", "", "+05:30", nil), nil)
	_, err := store.Current()
	assert.True(t, appErrors.Is(err, appErrors.ErrSourceUnavailable))
	assert.Zero(t, store.Overrides().Len())
}
