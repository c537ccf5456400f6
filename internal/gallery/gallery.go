// Package gallery holds the known faces used as the recognition reference set.
package gallery

import (
	"math"

	"github.com/andresmejia3/facegate/internal/vision"
	"gonum.org/v1/gonum/floats"
)

// Unknown is the label given to faces that match no gallery entry.
const Unknown = "Unknown"

// DefaultThreshold is the Euclidean distance under which two 128-d dlib
// descriptors are treated as the same person (inclusive).
const DefaultThreshold = 0.6

// Entry is one known face.
type Entry struct {
	Name      string
	Embedding vision.Embedding
	// Source is the image the embedding was computed from.
	Source string
}

// Gallery is an in-memory table of known faces. Names are not unique: two
// files with the same stem yield two entries with the same label.
// It is not safe for concurrent use.
type Gallery struct {
	entries []Entry
}

// New returns an empty gallery.
func New() *Gallery {
	return &Gallery{}
}

// Append adds an entry.
func (g *Gallery) Append(e Entry) {
	g.entries = append(g.entries, e)
}

// Len returns the number of entries.
func (g *Gallery) Len() int {
	return len(g.entries)
}

// Entries returns a copy of the table in insertion order.
func (g *Gallery) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	copy(out, g.entries)
	return out
}

// Match is the result of comparing one embedding against the gallery.
type Match struct {
	Name     string
	Distance float64
	// Index is the position of the matched entry, -1 when Known is false.
	Index int
	Known bool
}

// Match finds the nearest entry whose distance to query is within
// threshold. Without a candidate the result is labelled Unknown; Distance
// still reports the nearest entry (or +Inf for an empty gallery).
func (g *Gallery) Match(query vision.Embedding, threshold float64) Match {
	best := Match{Name: Unknown, Distance: math.Inf(1), Index: -1}
	for i, e := range g.entries {
		if d := Distance(query, e.Embedding); d < best.Distance {
			best.Distance = d
			best.Index = i
		}
	}
	// The nearest entry is the nearest candidate iff it is within threshold.
	if best.Index >= 0 && best.Distance <= threshold {
		best.Name = g.entries[best.Index].Name
		best.Known = true
	} else {
		best.Index = -1
	}
	return best
}

// Label returns the matched name or Unknown.
func (g *Gallery) Label(query vision.Embedding, threshold float64) string {
	return g.Match(query, threshold).Name
}

// Distance is the Euclidean distance between two embeddings. Embeddings of
// different or zero length are infinitely far apart.
func Distance(a, b vision.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}
