package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const titleMaxLen = 40

// Application wires the store, registry, ledger, sync controller and AI
// client together and carries the logged-in user for the UI layer.
//
// SendMessage and RequestImage may be called from a background goroutine
// (the TUI runs them as commands); they never mutate the session they are
// given, and the user/sync pointers are guarded so Logout can race a late
// in-flight call safely.
type Application struct {
	Config     Config
	Logger     *Logger
	Store      Store
	Classrooms *ClassroomRegistry
	Sessions   *SessionLedger
	AI         AIClient

	mu     sync.Mutex
	user   *User
	syncer *ConfigSync
}

func NewApplication(cfg Config, mockMode bool) (*Application, error) {
	logger := NewLogger(DefaultLogWriter())

	var store Store
	switch cfg.StorageBackend {
	case "file":
		store = NewFileStore(cfg.StorageRoot)
	case "", "sqlite":
		if st, err := NewSQLiteStore(cfg.StorageRoot); err == nil {
			store = st
		} else {
			// Fall back to the JSON files when SQLite is unavailable.
			logger.With(map[string]interface{}{"error": err.Error()}).
				Error("sqlite unavailable, using file store", nil)
			store = NewFileStore(cfg.StorageRoot)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want sqlite or file)", cfg.StorageBackend)
	}

	var client AIClient
	if mockMode {
		client = NewMockAIClient()
	} else {
		client = NewGeminiClient(cfg.BaseURL)
	}

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Classrooms: NewClassroomRegistry(store),
		Sessions:   NewSessionLedger(store),
		AI:         client,
	}, nil
}

func (a *Application) User() *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

// Classroom returns the synced classroom snapshot, or nil when logged out
// or in a pre-classroom state.
func (a *Application) Classroom() *Classroom {
	a.mu.Lock()
	syncer := a.syncer
	a.mu.Unlock()
	if syncer == nil {
		return nil
	}
	room := syncer.Current()
	return &room
}

// SyncFocus forwards a host focus-regain event to the sync controller.
func (a *Application) SyncFocus() {
	a.mu.Lock()
	syncer := a.syncer
	a.mu.Unlock()
	if syncer != nil {
		syncer.Focus()
	}
}

func (a *Application) startSync(code string) error {
	a.mu.Lock()
	old := a.syncer
	a.mu.Unlock()
	if old != nil {
		old.Close()
	}

	log := a.Logger.With(map[string]interface{}{"code": code})
	interval := time.Duration(a.Config.PollIntervalSeconds) * time.Second
	syncer := NewConfigSync(a.Classrooms, code, interval, func(room Classroom) {
		log.Info("classroom config refreshed", nil)
	})
	if err := syncer.Start(); err != nil {
		return err
	}
	a.mu.Lock()
	a.syncer = syncer
	a.mu.Unlock()
	return nil
}

// LoginTeacher reuses the classroom of any teacher with the same display
// name (case-insensitive) before creating a new one, so the same person
// logging back in lands in their own room.
func (a *Application) LoginTeacher(name string) (*Classroom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("teacher name required")
	}
	room, err := a.Classrooms.FindByTeacherName(name)
	if err != nil {
		return nil, err
	}
	if room == nil {
		room, err = a.Classrooms.CreateForTeacher(name)
		if err != nil {
			return nil, err
		}
	}
	u := User{Name: name, Role: "teacher", ClassCode: room.Code}
	if err := SaveLastUser(a.Store, u); err != nil {
		return nil, err
	}
	if err := a.startSync(room.Code); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.user = &u
	a.mu.Unlock()
	return room, nil
}

// LoginStudent joins an existing classroom by code. Codes are entered
// case-insensitively and normalized to uppercase here; an unknown code is
// a ConfigFault recovered by re-prompting.
func (a *Application) LoginStudent(name, code string) (*Classroom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("student name required")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != classroomCodeLength {
		return nil, ErrConfigFault
	}
	room, err := a.Classrooms.FindByCode(code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrConfigFault
	}
	u := User{Name: name, Role: "student", ClassCode: room.Code}
	if err := SaveLastUser(a.Store, u); err != nil {
		return nil, err
	}
	if err := a.startSync(room.Code); err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.user = &u
	a.mu.Unlock()
	return room, nil
}

// RestoreLastUser resumes the previous identity from the snapshot, if
// any, and restarts config sync for their classroom.
func (a *Application) RestoreLastUser() (*User, error) {
	u, err := LoadLastUser(a.Store)
	if err != nil || u == nil {
		return nil, err
	}
	if u.ClassCode != "" {
		if err := a.startSync(u.ClassCode); err != nil {
			// Classroom gone; treat the snapshot as stale.
			if errors.Is(err, ErrConfigFault) {
				return nil, nil
			}
			return nil, err
		}
	}
	a.mu.Lock()
	a.user = u
	a.mu.Unlock()
	return u, nil
}

// Logout tears down the sync controller and clears the snapshot.
func (a *Application) Logout() error {
	a.mu.Lock()
	syncer := a.syncer
	a.syncer = nil
	a.user = nil
	a.mu.Unlock()
	if syncer != nil {
		syncer.Close()
	}
	return ClearLastUser(a.Store)
}

// UpdateClassroom is the teacher's full-record settings edit. The code is
// immutable; only instruction and credential change.
func (a *Application) UpdateClassroom(systemInstruction, apiKey string) (*Classroom, error) {
	a.mu.Lock()
	user := a.user
	syncer := a.syncer
	a.mu.Unlock()
	if user == nil || user.Role != "teacher" || syncer == nil {
		return nil, errors.New("classroom settings require a logged-in teacher")
	}
	room := syncer.Current()
	room.SystemInstruction = systemInstruction
	room.APIKey = apiKey
	if err := a.Classrooms.Upsert(room); err != nil {
		return nil, err
	}
	// Pick the edit up immediately rather than waiting out the interval.
	syncer.Revalidate()
	return &room, nil
}

// NewSession opens a fresh conversation for the logged-in user.
func (a *Application) NewSession() (*Session, error) {
	u := a.User()
	if u == nil {
		return nil, errors.New("not logged in")
	}
	return a.Sessions.Create(u.Name, a.Config.Model, u.ClassCode)
}

func (a *Application) instructionAndCredential() (string, string) {
	a.mu.Lock()
	syncer := a.syncer
	a.mu.Unlock()
	if syncer != nil {
		room := syncer.Current()
		return room.SystemInstruction, room.APIKey
	}
	return a.Config.SystemInstruction, ""
}

// SendMessage appends the user's message to a copy of sess, asks the
// collaborator for a reply, persists the copy, and returns it; the
// session passed in is left untouched so a caller may keep rendering it
// while the call is in flight. AI faults never escape: they become a
// model-role message in the transcript. A store failure is returned as-is
// and the caller must treat the operation as failed.
func (a *Application) SendMessage(ctx context.Context, sess *Session, text string) (*Session, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	instruction, credential := a.instructionAndCredential()

	out := sess.Clone()
	history := out.Messages
	out.Messages = append(out.Messages, NewMessage(RoleUser, text))

	reply, err := a.AI.Converse(ctx, history, text, instruction, credential, out.ModelID)
	if err != nil {
		if !IsAIFault(err) {
			err = fmt.Errorf("%w: %v", ErrServiceFault, err)
		}
		a.Logger.Error("converse failed", map[string]interface{}{"session": out.ID, "error": err.Error()})
		out.Messages = append(out.Messages, FaultMessage(err))
	} else {
		out.Messages = append(out.Messages, NewMessage(RoleModel, reply))
	}

	if out.Title == "" {
		out.Title = deriveTitle(text)
	}
	if err := a.Sessions.Save(out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestImage asks the collaborator for an image; the reply message
// carries the base64 payload as an attachment. Copy-in/copy-out and
// fault handling match SendMessage.
func (a *Application) RequestImage(ctx context.Context, sess *Session, prompt string) (*Session, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	_, credential := a.instructionAndCredential()

	out := sess.Clone()
	out.Messages = append(out.Messages, NewMessage(RoleUser, prompt))

	payload, err := a.AI.GenerateImage(ctx, prompt, credential)
	if err != nil {
		if !IsAIFault(err) {
			err = fmt.Errorf("%w: %v", ErrServiceFault, err)
		}
		a.Logger.Error("image generation failed", map[string]interface{}{"session": out.ID, "error": err.Error()})
		out.Messages = append(out.Messages, FaultMessage(err))
	} else {
		msg := NewMessage(RoleModel, "Here is your image.")
		msg.Attachment = payload
		out.Messages = append(out.Messages, msg)
	}

	if out.Title == "" {
		out.Title = deriveTitle(prompt)
	}
	if err := a.Sessions.Save(out); err != nil {
		return nil, err
	}
	return out, nil
}

func deriveTitle(text string) string {
	t := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if runes := []rune(t); len(runes) > titleMaxLen {
		t = strings.TrimSpace(string(runes[:titleMaxLen])) + "…"
	}
	return t
}
