package domain

import (
	"fmt"
	"strings"
	"time"
)

// Ticket is an IT support ticket as recorded by the ticket store.
type Ticket struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
	Status      Status    `json:"status"`
	Category    string    `json:"category,omitempty"`
	VectorID    string    `json:"vector_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TicketUpdate is the only way to mutate a stored ticket.
// Empty Category or VectorID leave the stored value unchanged.
type TicketUpdate struct {
	Status   Status
	Category string
	VectorID string
	Reason   string
}

type Provenance string

const (
	ProvenanceMachine Provenance = "machine"
	ProvenanceHuman   Provenance = "human"
)

// VectorRecord is one entry of the semantic memory.
type VectorRecord struct {
	ID         string     `json:"id"`
	Vector     []float32  `json:"vector"`
	Text       string     `json:"text"`
	Category   string     `json:"category"`
	Provenance Provenance `json:"provenance"`
	InsertedAt time.Time  `json:"inserted_at"`
	Seq        uint64     `json:"seq"`
}

// Neighbor is a vector record paired with its cosine distance to a query.
type Neighbor struct {
	Record   VectorRecord
	Distance float64
}

// Example is a labelled ticket used as few-shot context.
type Example struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type ClassificationRequest struct {
	Text     string
	Examples []Example
}

// ExamplesFrom converts retrieval results into few-shot examples, nearest first.
func ExamplesFrom(neighbors []Neighbor) []Example {
	out := make([]Example, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, Example{Text: n.Record.Text, Category: n.Record.Category})
	}
	return out
}

// Category is a classification label and the description used in prompting.
type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// CategorySet is the fixed, ordered set of labels a ticket may receive.
type CategorySet struct {
	items []Category
	index map[string]int
}

func NewCategorySet(categories []Category) (CategorySet, error) {
	if len(categories) == 0 {
		return CategorySet{}, fmt.Errorf("category set is empty")
	}
	set := CategorySet{
		items: make([]Category, 0, len(categories)),
		index: make(map[string]int, len(categories)),
	}
	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return CategorySet{}, fmt.Errorf("category name must not be empty")
		}
		key := strings.ToLower(name)
		if _, dup := set.index[key]; dup {
			return CategorySet{}, fmt.Errorf("duplicate category %q", name)
		}
		set.index[key] = len(set.items)
		set.items = append(set.items, Category{Name: name, Description: strings.TrimSpace(c.Description)})
	}
	return set, nil
}

func (s CategorySet) All() []Category {
	out := make([]Category, len(s.items))
	copy(out, s.items)
	return out
}

func (s CategorySet) Names() []string {
	names := make([]string, len(s.items))
	for i, c := range s.items {
		names[i] = c.Name
	}
	return names
}

func (s CategorySet) Len() int {
	return len(s.items)
}

// Canonical resolves a label case-insensitively to its configured spelling.
func (s CategorySet) Canonical(name string) (string, bool) {
	i, ok := s.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return s.items[i].Name, true
}

func (s CategorySet) Contains(name string) bool {
	_, ok := s.Canonical(name)
	return ok
}
