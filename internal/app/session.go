package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionRetentionCap is the maximum number of sessions kept per user.
// Save evicts a user's oldest sessions beyond this on every write.
const SessionRetentionCap = 20

// SessionLedger owns the sessions collection: upsert-by-id with per-user
// retention eviction, and per-user / per-classroom queries.
type SessionLedger struct {
	store Store
}

func NewSessionLedger(store Store) *SessionLedger {
	return &SessionLedger{store: store}
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// Clone returns a deep copy of the session. The message slice is copied
// so the caller's transcript and the clone's never share backing storage.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return &out
}

func (l *SessionLedger) loadAll() ([]Session, error) {
	b, err := l.store.Read(keySessions)
	if errors.Is(err, ErrKeyAbsent) {
		return []Session{}, nil
	}
	if err != nil {
		return nil, err
	}
	var sessions []Session
	if err := json.Unmarshal(b, &sessions); err != nil {
		return nil, &StorageFault{Op: "decode", Key: keySessions, Err: err}
	}
	return sessions, nil
}

func (l *SessionLedger) saveAll(sessions []Session) error {
	b, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return &StorageFault{Op: "encode", Key: keySessions, Err: err}
	}
	return l.store.Write(keySessions, b)
}

// sortNewestFirst orders by CreatedAt descending with id as the secondary
// key, so same-instant sessions keep a stable order within a process run.
func sortNewestFirst(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

func (l *SessionLedger) ListByUser(userID string) ([]Session, error) {
	all, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	mine := make([]Session, 0, len(all))
	for _, s := range all {
		if s.UserID == userID {
			mine = append(mine, s)
		}
	}
	sortNewestFirst(mine)
	return mine, nil
}

// ListByClassroom is the supervisory view: every session created under a
// classroom code, regardless of owner.
func (l *SessionLedger) ListByClassroom(classCode string) ([]Session, error) {
	all, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(all))
	for _, s := range all {
		if s.ClassCode == classCode {
			out = append(out, s)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (l *SessionLedger) Get(sessionID string) (*Session, error) {
	all, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == sessionID {
			s := all[i]
			return &s, nil
		}
	}
	return nil, nil
}

// Create persists a new empty session with a time-derived id. classCode
// may be empty for pre-classroom sessions.
func (l *SessionLedger) Create(userID, modelID, classCode string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        fmt.Sprintf("%d", now.UnixNano()),
		UserID:    userID,
		ClassCode: classCode,
		Messages:  []Message{},
		CreatedAt: now,
		ModelID:   modelID,
	}
	if err := l.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save upserts the session by id, then enforces the per-user retention
// cap: the owner's sessions are recounted newest-first and any beyond
// SessionRetentionCap are dropped from the global collection. Other
// users' sessions are never touched. The whole collection is persisted
// in one write.
func (l *SessionLedger) Save(sess *Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	if strings.TrimSpace(sess.ID) == "" || strings.TrimSpace(sess.UserID) == "" {
		return errors.New("missing session fields")
	}

	all, err := l.loadAll()
	if err != nil {
		return err
	}

	merged := make([]Session, 0, len(all)+1)
	for _, s := range all {
		if s.ID != sess.ID {
			merged = append(merged, s)
		}
	}
	merged = append(merged, *sess)

	mine := make([]Session, 0, SessionRetentionCap+1)
	for _, s := range merged {
		if s.UserID == sess.UserID {
			mine = append(mine, s)
		}
	}
	if len(mine) > SessionRetentionCap {
		sortNewestFirst(mine)
		evict := make(map[string]struct{}, len(mine)-SessionRetentionCap)
		for _, s := range mine[SessionRetentionCap:] {
			evict[s.ID] = struct{}{}
		}
		kept := merged[:0]
		for _, s := range merged {
			if _, gone := evict[s.ID]; gone {
				continue
			}
			kept = append(kept, s)
		}
		merged = kept
	}

	return l.saveAll(merged)
}

// Delete removes the session by id. A missing id is a no-op.
func (l *SessionLedger) Delete(sessionID string) error {
	all, err := l.loadAll()
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, s := range all {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	return l.saveAll(kept)
}

// AnnotateMessage sets the feedback field on one message. Feedback is the
// only mutable part of a message; the session is still replaced whole.
func (l *SessionLedger) AnnotateMessage(sessionID, messageID, feedback string) error {
	sess, err := l.Get(sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}
	found := false
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			sess.Messages[i].Feedback = feedback
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("message %s not found in session %s", messageID, sessionID)
	}
	return l.Save(sess)
}
