package rewards

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Tier is one rung of the badge ladder.
type Tier struct {
	Name      string `yaml:"name" json:"name"`
	MinPoints int64  `yaml:"min_points" json:"min_points"`
}

// Ladder maps a point total to a badge. Tiers are sorted by MinPoints and
// the first tier starts at 0.
type Ladder struct {
	tiers []Tier
}

// DefaultLadder is used when no ladder file is configured.
func DefaultLadder() Ladder {
	l, _ := NewLadder([]Tier{
		{Name: "beginner", MinPoints: 0},
		{Name: "bronze", MinPoints: 100},
		{Name: "silver", MinPoints: 250},
		{Name: "gold", MinPoints: 500},
		{Name: "platinum", MinPoints: 1000},
	})
	return l
}

// NewLadder validates tiers and normalizes their names to title case.
func NewLadder(tiers []Tier) (Ladder, error) {
	if len(tiers) == 0 {
		return Ladder{}, fmt.Errorf("badge ladder needs at least one tier")
	}

	title := cases.Title(language.English)
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })

	names := make(map[string]bool, len(sorted))
	for i := range sorted {
		name := strings.TrimSpace(sorted[i].Name)
		if name == "" {
			return Ladder{}, fmt.Errorf("badge tier %d has no name", i+1)
		}
		sorted[i].Name = title.String(name)
		if names[sorted[i].Name] {
			return Ladder{}, fmt.Errorf("duplicate badge %q", sorted[i].Name)
		}
		names[sorted[i].Name] = true
		if i > 0 && sorted[i].MinPoints == sorted[i-1].MinPoints {
			return Ladder{}, fmt.Errorf("badges %q and %q share threshold %d", sorted[i-1].Name, sorted[i].Name, sorted[i].MinPoints)
		}
	}
	if sorted[0].MinPoints != 0 {
		return Ladder{}, fmt.Errorf("lowest badge must start at 0 points, got %d", sorted[0].MinPoints)
	}
	return Ladder{tiers: sorted}, nil
}

// LoadLadder reads a YAML ladder file of the form
//
//	badges:
//	  - name: beginner
//	    min_points: 0
func LoadLadder(path string) (Ladder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ladder{}, fmt.Errorf("reading badge ladder: %w", err)
	}

	var doc struct {
		Badges []Tier `yaml:"badges"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Ladder{}, fmt.Errorf("parsing badge ladder: %w", err)
	}
	return NewLadder(doc.Badges)
}

// BadgeFor returns the highest badge whose threshold points reaches.
func (l Ladder) BadgeFor(points int64) string {
	badge := l.Lowest()
	for _, t := range l.tiers {
		if points < t.MinPoints {
			break
		}
		badge = t.Name
	}
	return badge
}

// Next returns the first tier above points, if any.
func (l Ladder) Next(points int64) (Tier, bool) {
	for _, t := range l.tiers {
		if t.MinPoints > points {
			return t, true
		}
	}
	return Tier{}, false
}

// Lowest is the badge of a learner with no points.
func (l Ladder) Lowest() string {
	if len(l.tiers) == 0 {
		return ""
	}
	return l.tiers[0].Name
}

// Tiers returns a copy of the ladder, lowest first.
func (l Ladder) Tiers() []Tier {
	return append([]Tier(nil), l.tiers...)
}
