package platform

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrDuplicateScript is returned when a script's content hash was already
	// submitted, by anyone.
	ErrDuplicateScript = errors.New("platform: duplicate script")
)

// ScriptRecord is one accepted submission.
type ScriptRecord struct {
	ArtifactID  string    `json:"artifact_id"`
	ContentHash string    `json:"content_hash"`
	UID         int       `json:"uid"`
	Submitter   string    `json:"submitter"`
	SizeBytes   int64     `json:"size_bytes"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ScriptRegistry tracks submitted script hashes globally and assigns each
// submitting identity a stable numeric uid. Duplicate content is rejected no
// matter who submits it, which kills copy-paste plagiarism at the door.
type ScriptRegistry struct {
	mu      sync.Mutex
	byHash  map[string]ScriptRecord
	byOrder []string
	uids    map[string]int
	nextUID int
}

// NewScriptRegistry returns an empty registry.
func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{
		byHash:  make(map[string]ScriptRecord),
		uids:    make(map[string]int),
		nextUID: 1,
	}
}

// Add records a submission by the given identity. The content hash doubles
// as the artifact id; the uid is assigned here, never taken from the caller.
func (r *ScriptRegistry) Add(submitter, contentHash string, sizeBytes int64, at time.Time) (ScriptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHash[contentHash]; exists {
		return ScriptRecord{}, ErrDuplicateScript
	}
	uid, ok := r.uids[submitter]
	if !ok {
		uid = r.nextUID
		r.nextUID++
		r.uids[submitter] = uid
	}
	record := ScriptRecord{
		ArtifactID:  contentHash,
		ContentHash: contentHash,
		UID:         uid,
		Submitter:   submitter,
		SizeBytes:   sizeBytes,
		SubmittedAt: at,
	}
	r.byHash[contentHash] = record
	r.byOrder = append(r.byOrder, contentHash)
	return record, nil
}

// Lookup returns the record for a content hash.
func (r *ScriptRegistry) Lookup(contentHash string) (ScriptRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byHash[contentHash]
	return record, ok
}

// UIDOf returns the uid assigned to a submitting identity, if any.
func (r *ScriptRegistry) UIDOf(submitter string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid, ok := r.uids[submitter]
	return uid, ok
}

// SubmissionOrder reports how early a candidate's earliest surviving script
// arrived; lower is earlier. Unknown candidates sort last.
func (r *ScriptRegistry) SubmissionOrder(uid int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, hash := range r.byOrder {
		if r.byHash[hash].UID == uid {
			return i
		}
	}
	return len(r.byOrder)
}
