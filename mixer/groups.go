package mixer

import "github.com/kickmix/audiomixer/internal/mixererr"

// AllChannels is the scope sentinel meaning "every channel", accepted by
// the bulk operations in play.go and by OldestChannel.
const AllChannels = -1

// AddGroup allocates a new empty group and returns its id, the lowest free
// slot encoded as -(slot+2) so group ids are always negative and distinct
// from channel indices and from AllChannels (-1).
func (e *Engine) AddGroup() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.groups {
		if !e.groups[i].used {
			e.groups[i] = groupSlot{used: true, channels: map[int]bool{}}
			return slotToGroupID(i)
		}
	}
	e.groups = append(e.groups, groupSlot{used: true, channels: map[int]bool{}})
	return slotToGroupID(len(e.groups) - 1)
}

// RemoveGroup clears the slot but leaves other group ids stable, since the
// -slot-2 encoding does not shift. AddGroup reuses the lowest free slot,
// so an id kept after removal resolves to whichever group is added into
// that slot next.
func (e *Engine) RemoveGroup(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, err := e.groupSlotIndex(id)
	if err != nil {
		return err
	}
	e.groups[slot] = groupSlot{}
	return nil
}

func slotToGroupID(slot int) int { return -slot - 2 }

func groupIDToSlot(id int) (int, bool) {
	if id > -2 {
		return 0, false
	}
	return -id - 2, true
}

func (e *Engine) groupSlotIndex(id int) (int, error) {
	slot, ok := groupIDToSlot(id)
	if !ok || slot >= len(e.groups) || !e.groups[slot].used {
		return 0, mixererr.ErrInvalidArgument
	}
	return slot, nil
}

func (e *Engine) validChannelLocked(idx int) bool {
	return idx >= 0 && idx < len(e.channels)
}

// GroupChannel adds channel idx to group id.
func (e *Engine) GroupChannel(id, idx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, err := e.groupSlotIndex(id)
	if err != nil {
		return err
	}
	if !e.validChannelLocked(idx) {
		return mixererr.ErrOutOfRange
	}
	e.groups[slot].channels[idx] = true
	return nil
}

// UngroupChannel removes channel idx from group id, if present.
func (e *Engine) UngroupChannel(id, idx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, err := e.groupSlotIndex(id)
	if err != nil {
		return err
	}
	delete(e.groups[slot].channels, idx)
	return nil
}

// GroupRange adds channels [lo, hi] (inclusive) to group id.
func (e *Engine) GroupRange(id, lo, hi int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, err := e.groupSlotIndex(id)
	if err != nil {
		return err
	}
	for i := lo; i <= hi; i++ {
		if !e.validChannelLocked(i) {
			return mixererr.ErrOutOfRange
		}
		e.groups[slot].channels[i] = true
	}
	return nil
}

// GroupSize returns the number of channels currently in group id.
func (e *Engine) GroupSize(id int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, err := e.groupSlotIndex(id)
	if err != nil {
		return 0, err
	}
	return len(e.groups[slot].channels), nil
}

// GetGroupChannels returns the channel indices currently in group id, in
// no particular order.
func (e *Engine) GetGroupChannels(id int) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, err := e.groupSlotIndex(id)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(e.groups[slot].channels))
	for idx := range e.groups[slot].channels {
		out = append(out, idx)
	}
	return out, nil
}

// scopeIndicesLocked resolves a bulk-operation scope (AllChannels or a group id)
// to the concrete channel indices it covers.
func (e *Engine) scopeIndicesLocked(scope int) []int {
	if scope == AllChannels {
		out := make([]int, len(e.channels))
		for i := range e.channels {
			out[i] = i
		}
		return out
	}
	slot, err := e.groupSlotIndex(scope)
	if err != nil {
		return nil
	}
	out := make([]int, 0, len(e.groups[slot].channels))
	for idx := range e.groups[slot].channels {
		out = append(out, idx)
	}
	return out
}
