package sketchdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jennahamlin/mashwrapper/internal/curate"
	"github.com/jennahamlin/mashwrapper/logger"

	"go.uber.org/zap"
)

// Status tags a build outcome so merge can skip empty isolates without
// sniffing file names.
type Status int

const (
	// StatusOK is a real sketch
	StatusOK Status = iota

	// StatusNoData marks an isolate that produced no usable sequence
	StatusNoData
)

// BuildResult is the tagged outcome of sketching one curated file.
type BuildResult struct {
	// Source is the input file the result came from
	Source string

	// Sketch is the .msh path, empty for placeholders
	Sketch string

	// Status says whether Sketch is real
	Status Status
}

// EmptyDatabaseError means zero real sketches were left to merge. Fatal:
// an empty database can never produce an identification.
type EmptyDatabaseError struct{}

func (e *EmptyDatabaseError) Error() string {
	return "no sketches to merge: every input was a no-data placeholder, an empty database can never produce a match"
}

// ParameterMismatchError means the inputs were sketched with different
// parameters. Fatal: mixing them silently corrupts the distance math.
type ParameterMismatchError struct {
	Sketch string
	Want   Params
	Got    Params
}

func (e *ParameterMismatchError) Error() string {
	return fmt.Sprintf("sketch %s was built with %s but the database requires %s",
		e.Sketch, e.Got, e.Want)
}

// Builder sketches curated sequence files with one fixed parameter set.
type Builder struct {
	Mash   *Mash
	Params Params
}

// Build sketches one curated file. A no-data marker yields a
// placeholder result without invoking mash at all.
func (b *Builder) Build(curatedFile string) (BuildResult, error) {
	if curate.IsNoDataMarker(curatedFile) {
		logger.Debug("skipping no-data marker", zap.String("file", filepath.Base(curatedFile)))
		return BuildResult{Source: curatedFile, Status: StatusNoData}, nil
	}

	sketch, err := b.Mash.Sketch(curatedFile, b.Params)
	if err != nil {
		return BuildResult{}, err
	}
	return BuildResult{Source: curatedFile, Sketch: sketch, Status: StatusOK}, nil
}

// BuildDir sketches every .fna under dir.
func (b *Builder) BuildDir(dir string) ([]BuildResult, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.fna"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no sequence files found under %s", dir)
	}

	results := make([]BuildResult, 0, len(files))
	for _, file := range files {
		res, err := b.Build(file)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Merge validates and pastes the sketches into one reference database
// under outDir, named with a generation timestamp so prior databases
// survive. Placeholders are dropped first; zero real sketches or any
// parameter disagreement aborts before a file is written.
func (b *Builder) Merge(results []BuildResult, outDir string) (string, error) {
	var sketches []string
	for _, res := range results {
		if res.Status != StatusOK {
			continue
		}
		sketches = append(sketches, res.Sketch)
	}

	if len(sketches) == 0 {
		return "", &EmptyDatabaseError{}
	}

	want, _, err := b.Mash.Info(sketches[0])
	if err != nil {
		return "", err
	}
	for _, sketch := range sketches[1:] {
		got, _, err := b.Mash.Info(sketch)
		if err != nil {
			return "", err
		}
		if got.Kmer != want.Kmer || got.Size != want.Size {
			return "", &ParameterMismatchError{Sketch: sketch, Want: want, Got: got}
		}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}

	db := filepath.Join(outDir, databaseName(time.Now()))
	if err := b.Mash.Paste(db, sketches); err != nil {
		return "", err
	}

	logger.Info("merged reference database",
		zap.String("database", db),
		zap.Int("sketches", len(sketches)),
		zap.String("params", want.String()))

	return db, nil
}

// databaseName stamps the artifact with its generation time.
func databaseName(t time.Time) string {
	return fmt.Sprintf("refdb-%s.msh", t.Format("20060102-150405"))
}

// ValidateExt rejects database paths that are not .msh files.
func ValidateExt(path string) error {
	if !strings.HasSuffix(path, ".msh") {
		return fmt.Errorf("%s is not a .msh file: was the sketch database generated with mash?", path)
	}
	return nil
}
