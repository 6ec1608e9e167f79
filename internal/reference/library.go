// Package reference holds the read-only library of reference motion sequences
// that uploads are compared against.
//
// The corpus on disk is one folder per exercise, each holding one .npy array
// per reference performance:
//
//	<root>/VERSION                 optional, first line names the corpus version
//	<root>/push_up_npy/clip01.npy  float64, shape (frames, 33, 4) or (frames, 132)
//
// Folder names are matched after stripping a trailing qualifier suffix
// ("_npy" by default) and normalizing like exercise labels.
package reference

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"motion-scorer/internal/apperr"
	"motion-scorer/internal/pose"
)

const (
	// DefaultSuffix is the qualifier the corpus builder appends to exercise folders.
	DefaultSuffix = "_npy"

	versionFile      = "VERSION"
	unversioned      = "unversioned"
	referenceFileExt = ".npy"
)

// NormalizeLabel lowercases label and joins its whitespace-separated words with
// underscores, so "Push  Up " and "push_up" are the same key.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), "_"))
}

// Set is the reference data for one exercise.
type Set struct {
	Label     string
	Folder    string
	Version   string
	Sequences []pose.Sequence

	// vectors holds Sequences already flattened, built once with the Library.
	vectors [][][]float64
}

// Vectors returns every reference sequence flattened to one 132-value row per
// frame, in the same order as Sequences. The slices are shared and must not be
// modified.
func (s *Set) Vectors() [][][]float64 {
	if s.vectors == nil && len(s.Sequences) > 0 {
		return flattenAll(s.Sequences)
	}
	return s.vectors
}

func flattenAll(seqs []pose.Sequence) [][][]float64 {
	out := make([][][]float64, len(seqs))
	for i, seq := range seqs {
		out[i] = seq.Flatten()
	}
	return out
}

// Entry summarizes one exercise in the library.
type Entry struct {
	Label     string `json:"label"`
	Sequences int    `json:"sequences"`
}

// Library maps normalized exercise labels to reference sets. It is immutable
// after construction and safe for concurrent reads.
type Library struct {
	version string
	sets    map[string]*Set
}

// NewLibrary builds a Library from in-memory sequences keyed by label.
func NewLibrary(version string, sets map[string][]pose.Sequence) *Library {
	lib := &Library{version: version, sets: make(map[string]*Set, len(sets))}
	for label, seqs := range sets {
		key := NormalizeLabel(label)
		lib.sets[key] = &Set{Label: key, Folder: label, Version: version, Sequences: seqs, vectors: flattenAll(seqs)}
	}
	return lib
}

// Load reads every exercise folder under root. Files that cannot be decoded
// are skipped with a warning; a folder left without usable files stays in the
// library so that lookups report NoReferenceData rather than NotFound.
func Load(root, suffix string, log *slog.Logger) (*Library, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read corpus root %s: %w", root, err)
	}

	lib := &Library{version: readVersion(root), sets: make(map[string]*Set)}

	// os.ReadDir sorts by name, so the first folder wins deterministically.
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key := folderKey(entry.Name(), suffix)
		if key == "" {
			continue
		}
		if prev, dup := lib.sets[key]; dup {
			log.Warn("duplicate reference folder ignored",
				slog.String("label", key),
				slog.String("kept", prev.Folder),
				slog.String("ignored", entry.Name()))
			continue
		}

		set, err := loadSet(filepath.Join(root, entry.Name()), log)
		if err != nil {
			return nil, err
		}
		set.Label = key
		set.Folder = entry.Name()
		set.Version = lib.version
		lib.sets[key] = set
	}

	log.Info("reference library loaded",
		slog.String("root", root),
		slog.String("version", lib.version),
		slog.Int("exercises", len(lib.sets)),
		slog.Int("sequences", lib.SequenceCount()))
	return lib, nil
}

// Lookup returns the reference set for label.
func (l *Library) Lookup(label string) (*Set, error) {
	key := NormalizeLabel(label)
	set, ok := l.sets[key]
	if !ok || key == "" {
		return nil, apperr.New(apperr.KindNotFound, "no reference dataset matches exercise %q", label)
	}
	if len(set.Sequences) == 0 {
		return nil, apperr.New(apperr.KindNoReferenceData, "reference dataset %q has no usable %s files", set.Folder, referenceFileExt)
	}
	return set, nil
}

// Version returns the corpus version.
func (l *Library) Version() string {
	return l.version
}

// SequenceCount returns the number of reference sequences across all exercises.
func (l *Library) SequenceCount() int {
	n := 0
	for _, s := range l.sets {
		n += len(s.Sequences)
	}
	return n
}

// Entries lists the exercises sorted by label.
func (l *Library) Entries() []Entry {
	out := make([]Entry, 0, len(l.sets))
	for label, s := range l.sets {
		out = append(out, Entry{Label: label, Sequences: len(s.Sequences)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func folderKey(name, suffix string) string {
	if suffix != "" && len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		name = name[:len(name)-len(suffix)]
	}
	return NormalizeLabel(name)
}

func readVersion(root string) string {
	b, err := os.ReadFile(filepath.Join(root, versionFile))
	if err != nil {
		return unversioned
	}
	line, _, _ := strings.Cut(string(b), "\n")
	if v := strings.TrimSpace(line); v != "" {
		return v
	}
	return unversioned
}

func loadSet(dir string, log *slog.Logger) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read reference folder %s: %w", dir, err)
	}

	set := &Set{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), referenceFileExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		seq, err := ReadSequence(path)
		if err != nil {
			log.Warn("skipping unusable reference file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		set.Sequences = append(set.Sequences, seq)
	}
	set.vectors = flattenAll(set.Sequences)
	return set, nil
}

// ReadSequence decodes one reference array.
func ReadSequence(path string) (pose.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}
	if r.Header.Descr.Fortran {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}

	shape := r.Header.Descr.Shape
	switch {
	case len(shape) == 3 && shape[1] == pose.LandmarkCount && shape[2] == pose.LandmarkFields:
	case len(shape) == 2 && shape[1] == pose.FrameDims:
	default:
		return nil, fmt.Errorf("unexpected array shape %v", shape)
	}
	if shape[0] == 0 {
		return nil, fmt.Errorf("array has no frames")
	}

	raw := make([]float64, shape[0]*pose.FrameDims)
	if err := r.Read(&raw); err != nil {
		return nil, fmt.Errorf("read npy data: %w", err)
	}
	return pose.FromMatrix(mat.NewDense(shape[0], pose.FrameDims, raw))
}

// WriteSequence stores seq as a (frames, 132) float64 array.
func WriteSequence(path string, seq pose.Sequence) error {
	if len(seq) == 0 {
		return fmt.Errorf("refusing to write an empty sequence to %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, seq.Matrix()); err != nil {
		f.Close()
		return fmt.Errorf("write npy: %w", err)
	}
	return f.Close()
}
