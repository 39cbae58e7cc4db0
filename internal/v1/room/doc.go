package room

import (
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// Doc is a room's shared document. Version starts at 0 for an empty room
// and increments by exactly one on every accepted write.
type Doc struct {
	Version int
	Text    string
}

// UpdateStatus classifies the outcome of UpdateDoc.
type UpdateStatus int

const (
	// UpdateApplied means the write was accepted and the version advanced.
	UpdateApplied UpdateStatus = iota
	// UpdateConflict means baseVersion did not match the current version.
	UpdateConflict
	// UpdateNotMember means the client is not in the room it tried to write.
	UpdateNotMember
)

// UpdateDocResult reports a conditional document write. Doc holds the state
// after an applied write, or the current state on conflict so the writer
// can rebase. Members is the broadcast audience for an applied write,
// captured under the same lock as the write itself.
type UpdateDocResult struct {
	Status  UpdateStatus
	Doc     Doc
	Members []types.ClientIdType
}

// UpdateDoc writes text to the document of the room clientID occupies.
// A non-empty roomID must match that room. A nil baseVersion is an
// unconditional write; otherwise the write only applies when baseVersion
// equals the current version, and a mismatch leaves the document untouched.
func (r *Registry) UpdateDoc(clientID types.ClientIdType, roomID types.RoomIdType, text string, baseVersion *int) UpdateDocResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byClient[clientID]
	if !ok || (roomID != "" && current != roomID) {
		return UpdateDocResult{Status: UpdateNotMember}
	}
	rm := r.rooms[current]

	if baseVersion != nil && *baseVersion != rm.doc.Version {
		metrics.DocUpdates.WithLabelValues("rejected").Inc()
		return UpdateDocResult{Status: UpdateConflict, Doc: rm.doc}
	}

	rm.doc.Version++
	rm.doc.Text = text
	metrics.DocUpdates.WithLabelValues("applied").Inc()
	return UpdateDocResult{
		Status:  UpdateApplied,
		Doc:     rm.doc,
		Members: rm.members.SortedList(),
	}
}

// GetDoc returns the document of the room clientID occupies. The second
// return is false when the client is not in a room.
func (r *Registry) GetDoc(clientID types.ClientIdType) (Doc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byClient[clientID]
	if !ok {
		return Doc{}, false
	}
	return r.rooms[roomID].doc, true
}
