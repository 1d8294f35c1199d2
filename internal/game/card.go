package game

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
)

var ErrDeckNotLoaded = errors.New("question deck not loaded")
var ErrDeckExhausted = errors.New("no unseen questions left to draw")

// DefaultCardSize is how many questions a card offers the leader.
const DefaultCardSize = 3

// MaxCardSize bounds what a client may ask for in request-questions.
const MaxCardSize = 5

//go:embed cards.json
var rawDeck []byte

// Card is one category with the questions offered to the round's leader.
type Card struct {
	Category  string   `json:"category"`
	Questions []string `json:"questions"`
}

// Deck holds the loaded question pool and the randomness used for draws.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// LoadDeck parses the embedded question pool.
func LoadDeck(rng *rand.Rand) (*Deck, error) {
	var cards []Card
	if err := json.Unmarshal(rawDeck, &cards); err != nil {
		return nil, fmt.Errorf("parse embedded deck: %w", err)
	}
	return NewDeck(cards, rng)
}

// NewDeck builds a deck from an explicit card pool. Tests use this to get
// deterministic draws.
func NewDeck(cards []Card, rng *rand.Rand) (*Deck, error) {
	if len(cards) == 0 {
		return nil, ErrDeckNotLoaded
	}
	return &Deck{cards: cards, rng: rng}, nil
}

// Size reports how many categories the deck carries.
func (d *Deck) Size() int { return len(d.cards) }

// Draw picks a random category and samples n of its questions, skipping any
// question in exclude. Categories without enough unseen questions are passed
// over, so repeated relance draws within a round never show a duplicate.
func (d *Deck) Draw(n int, exclude map[string]bool) (Card, error) {
	if n <= 0 {
		n = DefaultCardSize
	}
	if n > MaxCardSize {
		n = MaxCardSize
	}

	order := d.rng.Perm(len(d.cards))
	for _, i := range order {
		c := d.cards[i]
		var fresh []string
		for _, q := range c.Questions {
			if !exclude[q] {
				fresh = append(fresh, q)
			}
		}
		if len(fresh) < n {
			continue
		}
		d.rng.Shuffle(len(fresh), func(a, b int) { fresh[a], fresh[b] = fresh[b], fresh[a] })
		return Card{Category: c.Category, Questions: fresh[:n]}, nil
	}
	return Card{}, ErrDeckExhausted
}
