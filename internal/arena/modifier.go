// internal/arena/modifier.go
package arena

import (
	"fmt"
	"sync"
)

// Effect is the gameplay consequence of a modifier. Fields are scale
// factors applied when a room is created (PaddleScale, BallSpeedScale)
// or on every paddle hit (HitAccel). The zero factors are normalized to
// 1.0 so an empty Effect is a no-op.
type Effect struct {
	PaddleScale    float64 `json:"paddleScale,omitempty"`
	BallSpeedScale float64 `json:"ballSpeedScale,omitempty"`
	HitAccel       float64 `json:"hitAccel,omitempty"`
}

func (e Effect) normalized() Effect {
	if e.PaddleScale == 0 {
		e.PaddleScale = 1
	}
	if e.BallSpeedScale == 0 {
		e.BallSpeedScale = 1
	}
	if e.HitAccel == 0 {
		e.HitAccel = 1
	}
	return e
}

// combine folds another effect into this one multiplicatively.
func (e Effect) combine(other Effect) Effect {
	e = e.normalized()
	other = other.normalized()
	return Effect{
		PaddleScale:    e.PaddleScale * other.PaddleScale,
		BallSpeedScale: e.BallSpeedScale * other.BallSpeedScale,
		HitAccel:       e.HitAccel * other.HitAccel,
	}
}

// Modifier is a named gameplay-rule variant. Immutable after creation;
// rooms reference modifiers by id and never own them.
type Modifier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Effect      Effect `json:"effect"`
}

// Registry holds the known modifiers. Writes happen at startup; match
// code only reads.
type Registry struct {
	mu   sync.RWMutex
	mods map[string]Modifier
}

// NewRegistry returns a registry seeded with the built-in modifiers.
func NewRegistry() *Registry {
	r := &Registry{mods: make(map[string]Modifier)}
	for _, m := range builtinModifiers {
		r.mods[m.ID] = m
	}
	return r
}

var builtinModifiers = []Modifier{
	{
		ID:          "big_paddle",
		Name:        "Big Paddle",
		Description: "Paddles are 50% taller.",
		Effect:      Effect{PaddleScale: 1.5},
	},
	{
		ID:          "small_paddle",
		Name:        "Small Paddle",
		Description: "Paddles are half height.",
		Effect:      Effect{PaddleScale: 0.5},
	},
	{
		ID:          "fast_ball",
		Name:        "Fast Ball",
		Description: "The ball serves 25% faster.",
		Effect:      Effect{BallSpeedScale: 1.25},
	},
	{
		ID:          "rally_heat",
		Name:        "Rally Heat",
		Description: "Every paddle hit speeds the ball up by 5%.",
		Effect:      Effect{HitAccel: 1.05},
	},
}

// Register adds a modifier. It refuses to overwrite an existing id, which
// keeps modifiers immutable once published.
func (r *Registry) Register(m Modifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		return fmt.Errorf("modifier id must not be empty")
	}
	if _, exists := r.mods[m.ID]; exists {
		return fmt.Errorf("modifier %q already registered", m.ID)
	}
	r.mods[m.ID] = m
	return nil
}

// Get returns the modifier for id, if known.
func (r *Registry) Get(id string) (Modifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mods[id]
	return m, ok
}

// Resolve maps a list of ids to modifiers, skipping unknown ids.
func (r *Registry) Resolve(ids []string) []Modifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Modifier
	for _, id := range ids {
		if m, ok := r.mods[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// List returns every registered modifier.
func (r *Registry) List() []Modifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Modifier, 0, len(r.mods))
	for _, m := range r.mods {
		out = append(out, m)
	}
	return out
}

// combinedEffect folds a modifier set into a single effect.
func combinedEffect(mods []Modifier) Effect {
	eff := Effect{}.normalized()
	for _, m := range mods {
		eff = eff.combine(m.Effect)
	}
	return eff
}
