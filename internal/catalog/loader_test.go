package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const yamlFixture = `
sports:
  - id: 1
    name: Football
venues:
  - id: 1
    name: City Arena
    city: Lisbon
    capacity: 20000
tournaments:
  - id: 1
    name: World Cup 2026
    sportId: 1
    venueId: 1
    status: Upcoming
    featured: true
    startDate: "2026-06-01T18:00:00Z"
    endDate: "2026-07-15T20:00:00Z"
`

const jsonFixture = `{
  "tournaments": [
    {"id": 2, "name": "FIFA World", "sportId": 1, "status": "live"}
  ]
}`

const tomlFixture = `
[[tournaments]]
id = 3
name = "Summer Games"
sportId = 2
status = "upcoming"
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSnapshotMergesFormats(t *testing.T) {
	dir := t.TempDir()
	filePath := writeFixture(t, dir, "base.yaml", yamlFixture)

	folder := filepath.Join(dir, "extra")
	require.NoError(t, os.Mkdir(folder, 0o755))
	writeFixture(t, folder, "teams.json", jsonFixture)
	writeFixture(t, folder, "more.toml", tomlFixture)
	writeFixture(t, folder, "ignored.txt", "not a fixture")

	snap, err := LoadSnapshot(filePath, folder)
	require.NoError(t, err)
	require.Len(t, snap.Tournaments, 3)
	require.Len(t, snap.Sports, 1)
	require.Len(t, snap.Venues, 1)

	first := snap.Tournaments[0]
	require.Equal(t, "World Cup 2026", first.Name)
	require.Equal(t, "upcoming", first.Status, "status is normalized to lowercase")
	require.Equal(t, "Football", first.SportName, "sport name is denormalized")
	require.Equal(t, time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC), first.StartDate)

	require.Equal(t, "Football", snap.Tournaments[1].SportName)
	require.Empty(t, snap.Tournaments[2].SportName, "unknown sport stays blank")
}

func TestLoadSnapshotRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.yaml", "tournaments:\n  - id: 1\n    name: One\n")
	writeFixture(t, dir, "b.yaml", "tournaments:\n  - id: 1\n    name: Two\n")

	_, err := LoadSnapshot("", dir)
	require.ErrorContains(t, err, "tournament 1 defined in both")
}

func TestLoadSnapshotRejectsBadDates(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "bad.yaml", "tournaments:\n  - id: 1\n    name: One\n    startDate: yesterday\n")

	_, err := LoadSnapshot(path, "")
	require.ErrorContains(t, err, "start date")
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "fixtures.yaml", "tournaments:\n  - id: 1\n    name: One\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan Snapshot, 4)
	watcher, err := Watch(ctx, path, "", func(snap Snapshot) {
		snapshots <- snap
	}, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	writeFixture(t, dir, "fixtures.yaml", "tournaments:\n  - id: 1\n    name: One\n  - id: 2\n    name: Two\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if len(snap.Tournaments) == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("watcher never delivered the updated snapshot")
		}
	}
}
