package koseki

import (
	"slices"
	"time"
)

// DirtyFlag is a bitmask of change categories recorded per entity.
type DirtyFlag uint32

const (
	// DirtyComponentAdded records that a component joined the entity's set.
	DirtyComponentAdded DirtyFlag = 1 << iota
	// DirtyComponentRemoved records that a component left the entity's set.
	DirtyComponentRemoved
	// DirtyComponentModified records an in-place change to component data.
	DirtyComponentModified
	// DirtyTransformChanged records a spatial change.
	DirtyTransformChanged
	// DirtyStateChanged records an active/enabled flip or other state edit.
	DirtyStateChanged
)

// DirtyData is the outstanding change record of one entity. An entry exists
// only while at least one flag is set and is removed the instant all flags
// clear.
type DirtyData struct {
	Entity             *Entity
	Flags              DirtyFlag
	ModifiedComponents map[ComponentTypeID]struct{}
	Timestamp          time.Time
	FrameNumber        uint64
}

// DirtyListener receives change records. Listeners run synchronously, in
// ascending priority order, twice per change cycle: once immediately when
// MarkDirty records the change (reactive consumers see it same-frame) and
// once more during the batch drain just before the entry clears (batched
// consumers get a consolidated view).
type DirtyListener func(*DirtyData)

type dirtyListener struct {
	priority int
	fn       DirtyListener
}

// DirtyTrackerConfig tunes the time-sliced batch drain.
type DirtyTrackerConfig struct {
	// MaxProcessingTime bounds one ProcessDirtyEntities call. Default 16ms.
	MaxProcessingTime time.Duration
	// BatchSize bounds entities drained per call. Default 100.
	BatchSize int
}

// DefaultDirtyTrackerConfig returns the production drain bounds.
func DefaultDirtyTrackerConfig() DirtyTrackerConfig {
	return DirtyTrackerConfig{
		MaxProcessingTime: 16 * time.Millisecond,
		BatchSize:         100,
	}
}

// DirtyStats is the tracker's diagnostics snapshot.
type DirtyStats struct {
	Pending        int
	Queued         int
	Frame          uint64
	TotalProcessed uint64
}

// DirtyTrackingSystem tracks per-entity change bitmasks plus the set of
// modified component types, and drains them to listeners in time-boxed
// batches so entity-change storms cannot blow a frame budget.
type DirtyTrackingSystem struct {
	cfg DirtyTrackerConfig

	entries map[*Entity]*DirtyData
	queue   []*Entity
	queued  map[*Entity]struct{}

	listeners []dirtyListener

	frame     uint64
	processed uint64
	draining  bool

	now func() time.Time
}

// NewDirtyTrackingSystem constructs a tracker with the given drain bounds.
func NewDirtyTrackingSystem(cfg DirtyTrackerConfig) *DirtyTrackingSystem {
	if cfg.MaxProcessingTime <= 0 {
		cfg.MaxProcessingTime = 16 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &DirtyTrackingSystem{
		cfg:     cfg,
		entries: make(map[*Entity]*DirtyData),
		queued:  make(map[*Entity]struct{}),
		now:     time.Now,
	}
}

// AddListener registers a listener at the given priority; lower priorities
// run first. Listeners cannot currently be removed.
func (s *DirtyTrackingSystem) AddListener(priority int, fn DirtyListener) {
	s.listeners = append(s.listeners, dirtyListener{priority: priority, fn: fn})
	slices.SortStableFunc(s.listeners, func(a, b dirtyListener) int {
		return a.priority - b.priority
	})
}

// MarkDirty records the change flags (and optionally the modified component
// types) for the entity, queues it for the next batch drain, and notifies
// listeners immediately.
func (s *DirtyTrackingSystem) MarkDirty(e *Entity, flags DirtyFlag, modified ...ComponentTypeID) {
	if e == nil || flags == 0 {
		return
	}
	entry, ok := s.entries[e]
	if !ok {
		entry = &DirtyData{
			Entity:             e,
			ModifiedComponents: make(map[ComponentTypeID]struct{}),
		}
		s.entries[e] = entry
	}
	entry.Flags |= flags
	for _, id := range modified {
		entry.ModifiedComponents[id] = struct{}{}
	}
	entry.Timestamp = s.now()
	entry.FrameNumber = s.frame

	if _, ok := s.queued[e]; !ok {
		s.queued[e] = struct{}{}
		s.queue = append(s.queue, e)
	}
	s.notify(entry)
}

// IsDirty reports whether the entity has any of the given flags outstanding.
// A zero flags value asks "is the entity dirty at all".
func (s *DirtyTrackingSystem) IsDirty(e *Entity, flags DirtyFlag) bool {
	entry, ok := s.entries[e]
	if !ok {
		return false
	}
	if flags == 0 {
		return true
	}
	return entry.Flags&flags != 0
}

// Dirty returns the entity's outstanding record, nil when clean.
func (s *DirtyTrackingSystem) Dirty(e *Entity) *DirtyData {
	return s.entries[e]
}

// ClearDirty clears the given flags on the entity; a zero flags value clears
// everything. The entry is removed the instant all flags are gone.
func (s *DirtyTrackingSystem) ClearDirty(e *Entity, flags DirtyFlag) {
	entry, ok := s.entries[e]
	if !ok {
		return
	}
	if flags == 0 {
		entry.Flags = 0
	} else {
		entry.Flags &^= flags
	}
	if entry.Flags == 0 {
		delete(s.entries, e)
	}
}

// ProcessDirtyEntities drains the working queue under the configured time
// budget and batch size, notifying listeners a second time just before each
// entry clears. Entities that do not fit in this call's budget stay queued
// for the next call. Returns the number of entities processed.
func (s *DirtyTrackingSystem) ProcessDirtyEntities() int {
	if s.draining {
		return 0
	}
	s.draining = true
	defer func() { s.draining = false }()

	deadline := s.now().Add(s.cfg.MaxProcessingTime)
	processed := 0
	for len(s.queue) > 0 {
		if processed >= s.cfg.BatchSize || !s.now().Before(deadline) {
			break
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, e)

		entry, ok := s.entries[e]
		if !ok {
			// cleared between mark and drain
			continue
		}
		s.notify(entry)
		delete(s.entries, e)
		processed++
		s.processed++
	}
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return processed
}

// BeginFrame advances the frame counter stamped onto new dirty records. The
// counter is diagnostic only.
func (s *DirtyTrackingSystem) BeginFrame() {
	s.frame++
}

// EndFrame drains the queue unless a drain is already in progress.
func (s *DirtyTrackingSystem) EndFrame() {
	if !s.draining {
		s.ProcessDirtyEntities()
	}
}

// Frame returns the current frame counter.
func (s *DirtyTrackingSystem) Frame() uint64 {
	return s.frame
}

// PendingCount returns how many entities currently hold outstanding flags.
func (s *DirtyTrackingSystem) PendingCount() int {
	return len(s.entries)
}

// Stats returns the tracker's diagnostics snapshot.
func (s *DirtyTrackingSystem) Stats() DirtyStats {
	return DirtyStats{
		Pending:        len(s.entries),
		Queued:         len(s.queue),
		Frame:          s.frame,
		TotalProcessed: s.processed,
	}
}

// Forget drops any outstanding record for the entity without notifying,
// used when the entity is destroyed.
func (s *DirtyTrackingSystem) Forget(e *Entity) {
	delete(s.entries, e)
	delete(s.queued, e)
}

// Clear resets all tracker state except the registered listeners.
func (s *DirtyTrackingSystem) Clear() {
	s.entries = make(map[*Entity]*DirtyData)
	s.queued = make(map[*Entity]struct{})
	s.queue = nil
}

func (s *DirtyTrackingSystem) notify(entry *DirtyData) {
	for _, l := range s.listeners {
		l.fn(entry)
	}
}
