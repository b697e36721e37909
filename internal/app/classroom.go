package app

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultSystemInstruction = "You are a friendly and patient classroom assistant. " +
	"Explain concepts simply, encourage questions, and keep answers appropriate for students."

const classroomCodeLength = 6

// 0/O and 1/I excluded so codes read back over a shoulder without ambiguity.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ClassroomRegistry owns the classrooms collection: code generation,
// lookup by code, and upsert-by-code. There is no delete path.
type ClassroomRegistry struct {
	store Store
}

func NewClassroomRegistry(store Store) *ClassroomRegistry {
	return &ClassroomRegistry{store: store}
}

// GenerateCode returns a 6-character uppercase code. Uniqueness against
// the registry is the caller's job; CreateForTeacher re-checks.
func GenerateCode() string {
	buf := make([]byte, classroomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the host is broken; derive from time
		// so login still works.
		seed := time.Now().UnixNano()
		for i := range buf {
			buf[i] = byte(seed >> (i * 8))
		}
	}
	out := make([]byte, classroomCodeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out)
}

func (r *ClassroomRegistry) loadAll() ([]Classroom, error) {
	b, err := r.store.Read(keyClassrooms)
	if errors.Is(err, ErrKeyAbsent) {
		return []Classroom{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rooms []Classroom
	if err := json.Unmarshal(b, &rooms); err != nil {
		return nil, &StorageFault{Op: "decode", Key: keyClassrooms, Err: err}
	}
	return rooms, nil
}

func (r *ClassroomRegistry) saveAll(rooms []Classroom) error {
	b, err := json.MarshalIndent(rooms, "", "  ")
	if err != nil {
		return &StorageFault{Op: "encode", Key: keyClassrooms, Err: err}
	}
	return r.store.Write(keyClassrooms, b)
}

func (r *ClassroomRegistry) ListAll() ([]Classroom, error) {
	return r.loadAll()
}

// FindByCode matches the stored code exactly. Stored codes are uppercase;
// callers must normalize user input before calling.
func (r *ClassroomRegistry) FindByCode(code string) (*Classroom, error) {
	rooms, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		if rooms[i].Code == code {
			room := rooms[i]
			return &room, nil
		}
	}
	return nil, nil
}

// FindByTeacherName scans for a case-insensitive display-name match. Two
// teachers who pick the same name share one classroom and its credential;
// that sharing is intended, not an identity bug.
func (r *ClassroomRegistry) FindByTeacherName(name string) (*Classroom, error) {
	rooms, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		if strings.EqualFold(strings.TrimSpace(rooms[i].TeacherName), strings.TrimSpace(name)) {
			room := rooms[i]
			return &room, nil
		}
	}
	return nil, nil
}

// Upsert replaces the record whose code matches, or appends if none does.
// This is the sole mutation path for classrooms.
func (r *ClassroomRegistry) Upsert(room Classroom) error {
	rooms, err := r.loadAll()
	if err != nil {
		return err
	}
	replaced := false
	for i := range rooms {
		if rooms[i].Code == room.Code {
			rooms[i] = room
			replaced = true
			break
		}
	}
	if !replaced {
		rooms = append(rooms, room)
	}
	return r.saveAll(rooms)
}

// CreateForTeacher builds and persists a fresh classroom with an unused
// code, an empty credential, and the default instruction. Codes are
// regenerated until free in the registry.
func (r *ClassroomRegistry) CreateForTeacher(teacherName string) (*Classroom, error) {
	rooms, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		taken[room.Code] = struct{}{}
	}

	code := ""
	for attempt := 0; attempt < 100; attempt++ {
		candidate := GenerateCode()
		if _, ok := taken[candidate]; !ok {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, fmt.Errorf("could not allocate an unused classroom code")
	}

	room := Classroom{
		Code:              code,
		TeacherName:       strings.TrimSpace(teacherName),
		APIKey:            "",
		SystemInstruction: DefaultSystemInstruction,
		CreatedAt:         time.Now(),
	}
	if err := r.Upsert(room); err != nil {
		return nil, err
	}
	return &room, nil
}
