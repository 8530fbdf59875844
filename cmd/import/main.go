// Command import bulk-loads a directory of GPX files into the activity
// database. Files that fail to parse or hold too few points are skipped with
// a log line; one bad export should not abort a thousand-file import.
//
// Ids are assigned sequentially from 1 in filename order, so re-running the
// import against a fresh database is reproducible.
package main

import (
	"flag"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"

	gogpx "github.com/tkrajina/gpxgo/gpx"

	"github.com/openridge/trackmap/internal/store"
	"github.com/openridge/trackmap/internal/track"
)

var (
	dbPath = flag.String("db", "activities.db", "Path to the activity database")
	gpxDir = flag.String("dir", ".", "Directory to scan for .gpx files")
)

func main() {
	flag.Parse()

	files, err := findGPXFiles(*gpxDir)
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", *gpxDir, err)
	}
	if len(files) == 0 {
		log.Fatalf("No .gpx files found under %s", *gpxDir)
	}

	db, err := store.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var nextID int64 = 1
	imported, skipped := 0, 0
	for _, path := range files {
		a, err := buildFromFile(nextID, path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			skipped++
			continue
		}
		if err := db.SaveActivity(a); err != nil {
			log.Printf("skipping %s: %v", path, err)
			skipped++
			continue
		}
		nextID++
		imported++
	}
	log.Printf("imported %d activities (%d skipped) into %s", imported, skipped, *dbPath)
}

func findGPXFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".gpx") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func buildFromFile(id int64, path string) (*track.Activity, error) {
	parsed, err := gogpx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return track.BuildFromGPX(id, parsed, filepath.Base(path))
}
