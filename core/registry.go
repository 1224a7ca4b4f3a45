package core

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Validator is a registered block producer with its latest biometric state.
type Validator struct {
	ID             string            `json:"id"`
	Snapshot       BiometricSnapshot `json:"snapshot"`
	Score          float64           `json:"score"`
	DeviceClass    DeviceClass       `json:"deviceClass"`
	LastActive     int64             `json:"lastActive"`
	BlocksProduced uint64            `json:"blocksProduced"`
}

// Registry holds every known validator. Snapshot ingestion is the only
// writer besides explicit registration; query paths read concurrently.
type Registry struct {
	validators *xsync.Map[string, Validator]
	threshold  float64
	log        *zap.Logger
}

// NewRegistry creates an empty validator registry.
func NewRegistry(cfg Config, log *zap.Logger) *Registry {
	return &Registry{
		validators: xsync.NewMap[string, Validator](),
		threshold:  cfg.EligibilityThreshold,
		log:        log,
	}
}

// Register creates a validator entry from its initial snapshot. No ledger
// account is opened: hashed state only ever changes through transactions,
// and an untouched address reads as a zero balance anyway.
func (r *Registry) Register(id string, snap BiometricSnapshot) Validator {
	v := Validator{
		ID:          id,
		Snapshot:    snap,
		Score:       EmotionalScore(snap),
		DeviceClass: ClassifyDevice(snap),
		LastActive:  time.Now().Unix(),
	}
	r.validators.Store(id, v)
	r.log.Info("validator registered",
		zap.String("validator", id),
		zap.Float64("score", v.Score),
		zap.String("deviceClass", string(v.DeviceClass)))
	return v
}

// Update recomputes the score from a new snapshot and refreshes the
// activity timestamp.
func (r *Registry) Update(id string, snap BiometricSnapshot) (Validator, error) {
	v, ok := r.validators.Load(id)
	if !ok {
		return Validator{}, ErrValidatorNotFound
	}
	v.Snapshot = snap
	v.Score = EmotionalScore(snap)
	v.DeviceClass = ClassifyDevice(snap)
	v.LastActive = time.Now().Unix()
	r.validators.Store(id, v)
	return v, nil
}

// Deregister removes a validator. Any balance it earned stays on the
// ledger.
func (r *Registry) Deregister(id string) error {
	if _, ok := r.validators.Load(id); !ok {
		return ErrValidatorNotFound
	}
	r.validators.Delete(id)
	r.log.Info("validator deregistered", zap.String("validator", id))
	return nil
}

// Get returns a validator by id.
func (r *Registry) Get(id string) (Validator, bool) {
	return r.validators.Load(id)
}

// List returns a stable, id-sorted snapshot of all validators.
func (r *Registry) List() []Validator {
	out := make([]Validator, 0, r.validators.Size())
	r.validators.Range(func(_ string, v Validator) bool {
		out = append(out, v)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Eligible returns the validators whose score meets the eligibility
// threshold, in stable id order so that height-based rotation is
// deterministic.
func (r *Registry) Eligible() []Validator {
	all := r.List()
	out := all[:0]
	for _, v := range all {
		if v.Score >= r.threshold {
			out = append(out, v)
		}
	}
	return out
}

// ConsensusScore is the mean emotional score across every registered
// validator, eligible or not. An ineligible validator still drags the
// published network score down.
func (r *Registry) ConsensusScore() float64 {
	all := r.List()
	if len(all) == 0 {
		return 0
	}
	scores := make([]float64, len(all))
	for i, v := range all {
		scores[i] = v.Score
	}
	return round2(stat.Mean(scores, nil))
}

// RecordBlock increments the lifetime block counter of a validator.
func (r *Registry) RecordBlock(id string) {
	if v, ok := r.validators.Load(id); ok {
		v.BlocksProduced++
		v.LastActive = time.Now().Unix()
		r.validators.Store(id, v)
	}
}
