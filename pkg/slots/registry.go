package slots

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aminofox/adproxy/pkg/logger"
)

// StaticSchedule configures the bulk slot generation for static mode.
type StaticSchedule struct {
	// AdDuration is the nominal break duration in seconds
	AdDuration float64

	// RepeatingCycle is the spacing between breaks in seconds
	RepeatingCycle float64

	// SlotCount bounds the generated schedule; slot indices run [1, SlotCount)
	SlotCount int

	// Live marks the anchor as the server start rather than a stream instant
	Live bool
}

// Registry is a concurrent set of pending ad slots. Insertion is idempotent
// by value and enumeration preserves insertion order.
type Registry struct {
	mu        sync.RWMutex
	slots     []Slot
	keys      map[key]struct{}
	populated bool
	logger    logger.Logger
}

// NewRegistry creates an empty slot registry
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		keys:   make(map[key]struct{}),
		logger: log,
	}
}

// Insert adds a slot unless an equal-valued slot is already present.
// Reports whether the slot was added.
func (r *Registry) Insert(slot Slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(slot)
}

func (r *Registry) insertLocked(slot Slot) bool {
	k := slot.key()
	if _, ok := r.keys[k]; ok {
		return false
	}
	r.keys[k] = struct{}{}
	r.slots = append(r.slots, slot)
	return true
}

// InsertDynamic mints a slot starting at the given instant, named by the
// current set cardinality, and interns it.
func (r *Registry) InsertDynamic(start time.Time, duration float64, pod int) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := Slot{
		ID:       uuid.New(),
		Index:    uint64(len(r.slots)),
		Start:    start,
		Duration: duration,
		Pod:      pod,
	}
	r.insertLocked(slot)

	r.logger.Debug("Inserted dynamic ad slot",
		logger.String("name", slot.Name()),
		logger.Time("start", slot.Start),
		logger.Float64("duration", slot.Duration),
		logger.Int("pod", slot.Pod))

	return slot
}

// PopulateStatic generates the repeating static schedule anchored at the
// given instant. The generation runs at most once per process; later calls
// are no-ops regardless of the anchor.
func (r *Registry) PopulateStatic(anchor time.Time, schedule StaticSchedule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.populated {
		return
	}
	r.populated = true

	if schedule.Live && schedule.RepeatingCycle < schedule.AdDuration {
		r.logger.Warn("Repeating cycle shorter than ad duration; generated slots will overlap",
			logger.Float64("cycle", schedule.RepeatingCycle),
			logger.Float64("duration", schedule.AdDuration))
	}

	for i := 1; i < schedule.SlotCount; i++ {
		offset := time.Duration(float64(i) * schedule.RepeatingCycle * float64(time.Second))
		r.insertLocked(Slot{
			ID:       uuid.New(),
			Index:    uint64(i),
			Start:    anchor.Add(offset),
			Duration: schedule.AdDuration,
			Pod:      staticPodCount,
		})
	}

	r.logger.Debug("Generated static ad slots",
		logger.Int("count", len(r.slots)),
		logger.Time("anchor", anchor))
}

// Populated reports whether the static schedule has been generated.
func (r *Registry) Populated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.populated
}

// Snapshot returns the current slots in enumeration order.
func (r *Registry) Snapshot() []Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// ByName finds the slot with the given derived name.
func (r *Registry) ByName(name string) (Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, slot := range r.slots {
		if slot.Name() == name {
			return slot, true
		}
	}
	return Slot{}, false
}

// Len returns the current set cardinality.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}
