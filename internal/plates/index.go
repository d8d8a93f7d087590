package plates

import (
	"encoding/json"
	"fmt"
	"os"
)

// Index is the ordered list of every plate that can still be issued, it is
// only used to turn a plate into a position.
type Index struct {
	rank  map[string]int
	count int
}

func NewIndex(list []string) Index {
	rank := make(map[string]int, len(list))
	for i, p := range list {
		if _, dup := rank[p]; dup {
			continue
		}
		rank[p] = i
	}
	return Index{rank: rank, count: len(list)}
}

func LoadIndex(path string) (Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Index{}, fmt.Errorf("load reference list: %w", err)
	}
	var list []string
	err = json.Unmarshal(raw, &list)
	if err != nil {
		return Index{}, fmt.Errorf("load reference list %s: %w", path, err)
	}
	return NewIndex(list), nil
}

// Rank is the zero based position of the plate.
func (i Index) Rank(plate string) (int, bool) {
	r, ok := i.rank[plate]
	return r, ok
}

// Gap is rank(target) - rank(plate), the number of plates still to be issued
// before the target.
func (i Index) Gap(target, plate string) (int, bool) {
	t, ok := i.Rank(target)
	if !ok {
		return 0, false
	}
	p, ok := i.Rank(plate)
	if !ok {
		return 0, false
	}
	return t - p, true
}

func (i Index) Len() int {
	return i.count
}
