package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// fixtureDocument is the on-disk shape of a catalog fixture. Dates travel as
// RFC 3339 strings so the same document loads from yaml, json, and toml.
type fixtureDocument struct {
	Sports      []fixtureSport      `koanf:"sports"`
	Venues      []fixtureVenue      `koanf:"venues"`
	Tournaments []fixtureTournament `koanf:"tournaments"`
}

type fixtureSport struct {
	ID   int64  `koanf:"id"`
	Name string `koanf:"name"`
}

type fixtureVenue struct {
	ID       int64  `koanf:"id"`
	Name     string `koanf:"name"`
	City     string `koanf:"city"`
	Capacity int    `koanf:"capacity"`
}

type fixtureTournament struct {
	ID        int64  `koanf:"id"`
	Name      string `koanf:"name"`
	SportID   int64  `koanf:"sportId"`
	VenueID   int64  `koanf:"venueId"`
	Status    string `koanf:"status"`
	Featured  bool   `koanf:"featured"`
	StartDate string `koanf:"startDate"`
	EndDate   string `koanf:"endDate"`
}

// LoadSnapshot reads fixture documents from an optional single file plus an
// optional folder and merges them into one snapshot. Later documents append;
// duplicate tournament IDs across documents are rejected so reloads cannot
// silently shadow records.
func LoadSnapshot(fixtureFile, fixtureFolder string) (Snapshot, error) {
	paths, err := fixturePaths(fixtureFile, fixtureFolder)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	seenTournaments := make(map[int64]string)
	sportNames := make(map[int64]string)

	for _, path := range paths {
		doc, err := loadDocument(path)
		if err != nil {
			return Snapshot{}, err
		}
		for _, s := range doc.Sports {
			snap.Sports = append(snap.Sports, Sport(s))
			sportNames[s.ID] = s.Name
		}
		for _, v := range doc.Venues {
			snap.Venues = append(snap.Venues, Venue(v))
		}
		for _, t := range doc.Tournaments {
			if prev, dup := seenTournaments[t.ID]; dup {
				return Snapshot{}, fmt.Errorf("catalog: tournament %d defined in both %s and %s", t.ID, prev, path)
			}
			seenTournaments[t.ID] = path
			record, err := t.toTournament()
			if err != nil {
				return Snapshot{}, fmt.Errorf("catalog: %s: %w", path, err)
			}
			snap.Tournaments = append(snap.Tournaments, record)
		}
	}

	// Denormalize sport names so search and detail reads need no join.
	for i := range snap.Tournaments {
		if name, ok := sportNames[snap.Tournaments[i].SportID]; ok {
			snap.Tournaments[i].SportName = name
		}
	}
	return snap, nil
}

func (t fixtureTournament) toTournament() (Tournament, error) {
	record := Tournament{
		ID:       t.ID,
		Name:     t.Name,
		SportID:  t.SportID,
		VenueID:  t.VenueID,
		Status:   strings.ToLower(strings.TrimSpace(t.Status)),
		Featured: t.Featured,
	}
	if record.Name == "" {
		return Tournament{}, fmt.Errorf("tournament %d has no name", t.ID)
	}
	if t.StartDate != "" {
		parsed, err := time.Parse(time.RFC3339, t.StartDate)
		if err != nil {
			return Tournament{}, fmt.Errorf("tournament %d start date: %w", t.ID, err)
		}
		record.StartDate = parsed
	}
	if t.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, t.EndDate)
		if err != nil {
			return Tournament{}, fmt.Errorf("tournament %d end date: %w", t.ID, err)
		}
		record.EndDate = parsed
	}
	return record, nil
}

func fixturePaths(fixtureFile, fixtureFolder string) ([]string, error) {
	var paths []string
	if fixtureFile != "" {
		paths = append(paths, fixtureFile)
	}
	if fixtureFolder != "" {
		entries, err := os.ReadDir(fixtureFolder)
		if err != nil {
			return nil, fmt.Errorf("catalog: read fixtures folder: %w", err)
		}
		var folderPaths []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if parserFor(entry.Name()) == nil {
				continue
			}
			folderPaths = append(folderPaths, filepath.Join(fixtureFolder, entry.Name()))
		}
		sort.Strings(folderPaths)
		paths = append(paths, folderPaths...)
	}
	return paths, nil
}

func loadDocument(path string) (fixtureDocument, error) {
	parser := parserFor(path)
	if parser == nil {
		return fixtureDocument{}, fmt.Errorf("catalog: unsupported fixture format %s", path)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fixtureDocument{}, fmt.Errorf("catalog: load %s: %w", path, err)
	}
	var doc fixtureDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return fixtureDocument{}, fmt.Errorf("catalog: unmarshal %s: %w", path, err)
	}
	return doc, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return kjson.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return nil
	}
}
