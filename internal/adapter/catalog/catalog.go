package catalog

import (
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"

	"github.com/Serg19772026/English-Trainer/internal/domain"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	topics []domain.Topic
	byID   map[string]int

	mu  sync.Mutex
	rng *rand.Rand
}

type catalogFile struct {
	Topics []domain.Topic `yaml:"topics"`
}

// Load reads the topic catalog from a YAML file
func Load(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	return New(cf.Topics)
}

// New builds a catalog from topics, rejecting duplicate or empty entries
func New(topics []domain.Topic) (*Catalog, error) {
	c := &Catalog{
		topics: topics,
		byID:   make(map[string]int, len(topics)),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	for i, t := range topics {
		if t.ID == "" {
			return nil, fmt.Errorf("topic %d has no id", i)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic %q", t.ID)
		}
		c.byID[t.ID] = i

		seen := make(map[string]bool, len(t.Sentences))
		for _, s := range t.Sentences {
			if s.ID == "" || s.Text == "" {
				return nil, fmt.Errorf("topic %q: sentence without id or text", t.ID)
			}
			if seen[s.ID] {
				return nil, fmt.Errorf("topic %q: duplicate sentence %q", t.ID, s.ID)
			}
			seen[s.ID] = true
		}
	}

	return c, nil
}

// Topics returns all topics in catalog order
func (c *Catalog) Topics() []domain.Topic {
	return c.topics
}

// Topic returns a topic by ID
func (c *Catalog) Topic(id string) (domain.Topic, error) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Topic{}, fmt.Errorf("topic %q: %w", id, domain.ErrNotFound)
	}
	return c.topics[i], nil
}

// Sentence returns a sentence of a topic by ID
func (c *Catalog) Sentence(topicID, sentenceID string) (domain.Sentence, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return domain.Sentence{}, err
	}
	for _, s := range t.Sentences {
		if s.ID == sentenceID {
			return s, nil
		}
	}
	return domain.Sentence{}, fmt.Errorf("sentence %q in topic %q: %w", sentenceID, topicID, domain.ErrNotFound)
}

// VisibleSentences picks at most n random sentences of a topic
func (c *Catalog) VisibleSentences(topicID string, n int) ([]domain.Sentence, error) {
	t, err := c.Topic(topicID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Sample(t, n, c.rng), nil
}

// Sample picks at most n sentences of a topic at random. The result keeps
// catalog order.
func Sample(t domain.Topic, n int, rng *rand.Rand) []domain.Sentence {
	if n <= 0 {
		return nil
	}
	if len(t.Sentences) <= n {
		return slices.Clone(t.Sentences)
	}

	idx := rng.Perm(len(t.Sentences))[:n]
	slices.Sort(idx)

	out := make([]domain.Sentence, 0, n)
	for _, i := range idx {
		out = append(out, t.Sentences[i])
	}
	return out
}
