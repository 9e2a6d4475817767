package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DictVectorizer maps feature vectors to dense columns. Categorical
// features become one-hot "name=value" columns and numeric features pass
// through under their own name. The vocabulary is sorted.
//
// A fitted or decoded vectorizer is safe for concurrent Transform calls.
type DictVectorizer struct {
	Vocabulary []string       `json:"vocabulary"`
	index      map[string]int // set by Fit and UnmarshalJSON, read-only after
}

// Fit learns the vocabulary from xs.
func (v *DictVectorizer) Fit(xs []FeatureVector) {
	seen := make(map[string]bool)
	for _, x := range xs {
		for name, val := range x.Categorical {
			seen[oneHot(name, val)] = true
		}
		for name := range x.Numeric {
			seen[name] = true
		}
	}
	v.Vocabulary = v.Vocabulary[:0]
	for col := range seen {
		v.Vocabulary = append(v.Vocabulary, col)
	}
	sort.Strings(v.Vocabulary)
	v.index = indexOf(v.Vocabulary)
}

// UnmarshalJSON restores the vocabulary and its column index.
func (v *DictVectorizer) UnmarshalJSON(data []byte) error {
	var doc struct {
		Vocabulary []string `json:"vocabulary"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	v.Vocabulary = doc.Vocabulary
	v.index = indexOf(v.Vocabulary)
	return nil
}

// Transform returns one dense row per vector. Features absent from the
// vocabulary are ignored.
func (v *DictVectorizer) Transform(xs []FeatureVector) [][]float64 {
	idx := v.index
	if len(idx) != len(v.Vocabulary) {
		idx = indexOf(v.Vocabulary)
	}
	out := make([][]float64, len(xs))
	for i, x := range xs {
		row := make([]float64, len(v.Vocabulary))
		for name, val := range x.Categorical {
			if j, ok := idx[oneHot(name, val)]; ok {
				row[j] = 1
			}
		}
		for name, val := range x.Numeric {
			if j, ok := idx[name]; ok {
				row[j] = val
			}
		}
		out[i] = row
	}
	return out
}

// Len is the number of output columns.
func (v *DictVectorizer) Len() int { return len(v.Vocabulary) }

func indexOf(vocab []string) map[string]int {
	idx := make(map[string]int, len(vocab))
	for i, col := range vocab {
		idx[col] = i
	}
	return idx
}

func oneHot(name, value string) string {
	return fmt.Sprintf("%s=%s", name, value)
}
