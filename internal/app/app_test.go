package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func testApp(t *testing.T, root string) *Application {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StorageBackend = "file"
	cfg.StorageRoot = root
	cfg.PollIntervalSeconds = 1
	a, err := NewApplication(cfg, true)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	t.Cleanup(func() {
		if a.syncer != nil {
			a.syncer.Close()
		}
	})
	return a
}

func TestTeacherLoginReusesClassroomByName(t *testing.T) {
	root := t.TempDir()
	a := testApp(t, root)

	first, err := a.LoginTeacher("Ms. Lee")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if err := a.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Same display name in a different case lands in the same classroom.
	second, err := a.LoginTeacher("ms. lee")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.Code != first.Code {
		t.Fatalf("expected classroom reuse, got %q then %q", first.Code, second.Code)
	}

	rooms, err := a.Classrooms.ListAll()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 1 {
		t.Fatalf("expected a single classroom record, got %d", len(rooms))
	}
}

func TestStudentLoginNormalizesCode(t *testing.T) {
	root := t.TempDir()
	teacher := testApp(t, root)
	room, err := teacher.LoginTeacher("Ms. Lee")
	if err != nil {
		t.Fatalf("teacher login: %v", err)
	}

	student := testApp(t, root)
	joined, err := student.LoginStudent("Sam", strings.ToLower(room.Code))
	if err != nil {
		t.Fatalf("student login: %v", err)
	}
	if joined.Code != room.Code {
		t.Fatalf("joined %q, want %q", joined.Code, room.Code)
	}
}

func TestStudentLoginUnknownCodeIsConfigFault(t *testing.T) {
	a := testApp(t, t.TempDir())
	if _, err := a.LoginStudent("Sam", "ZZZZZZ"); !errors.Is(err, ErrConfigFault) {
		t.Fatalf("expected ErrConfigFault, got %v", err)
	}
	if _, err := a.LoginStudent("Sam", "short"); !errors.Is(err, ErrConfigFault) {
		t.Fatalf("expected ErrConfigFault for malformed code, got %v", err)
	}
}

func TestSendMessagePersistsBothSides(t *testing.T) {
	a := testApp(t, t.TempDir())
	if _, err := a.LoginTeacher("Ms. Lee"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := a.UpdateClassroom("be brief", "key-1"); err != nil {
		t.Fatalf("update classroom: %v", err)
	}

	sess, err := a.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess, err = a.SendMessage(context.Background(), sess, "what is 2+2")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected user+model messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != RoleUser || sess.Messages[1].Role != RoleModel {
		t.Fatalf("roles out of order: %#v", sess.Messages)
	}
	if sess.Title == "" {
		t.Fatalf("first message should title the session")
	}

	stored, err := a.Sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored == nil || len(stored.Messages) != 2 {
		t.Fatalf("conversation not persisted: %#v", stored)
	}
}

func TestAuthFaultIsRecordedInTranscript(t *testing.T) {
	a := testApp(t, t.TempDir())
	// New classrooms start without a credential, so the first student
	// message produces an auth fault that must land in the transcript.
	if _, err := a.LoginTeacher("Ms. Lee"); err != nil {
		t.Fatalf("login: %v", err)
	}

	sess, err := a.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess, err = a.SendMessage(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("send must not propagate AI faults: %v", err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected fault message appended, got %d messages", len(sess.Messages))
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role != RoleModel || !strings.Contains(last.Text, "API key") {
		t.Fatalf("fault not rendered as a model message: %#v", last)
	}

	stored, err := a.Sessions.Get(sess.ID)
	if err != nil || stored == nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("fault message not persisted")
	}
}

func TestRequestImageCarriesAttachment(t *testing.T) {
	a := testApp(t, t.TempDir())
	if _, err := a.LoginTeacher("Ms. Lee"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := a.UpdateClassroom("be brief", "key-1"); err != nil {
		t.Fatalf("update classroom: %v", err)
	}

	sess, err := a.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess, err = a.RequestImage(context.Background(), sess, "a red balloon")
	if err != nil {
		t.Fatalf("request image: %v", err)
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role != RoleModel || last.Attachment == "" {
		t.Fatalf("expected model message with attachment: %#v", last)
	}
}

func TestRestoreLastUser(t *testing.T) {
	root := t.TempDir()
	a := testApp(t, root)
	room, err := a.LoginTeacher("Ms. Lee")
	if err != nil {
		t.Fatalf("teacher login: %v", err)
	}
	student := testApp(t, root)
	if _, err := student.LoginStudent("Sam", room.Code); err != nil {
		t.Fatalf("student login: %v", err)
	}

	relaunched := testApp(t, root)
	u, err := relaunched.RestoreLastUser()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if u == nil || u.Name != "Sam" || u.ClassCode != room.Code {
		t.Fatalf("unexpected snapshot: %#v", u)
	}
	if got := relaunched.Classroom(); got == nil || got.Code != room.Code {
		t.Fatalf("classroom not resynced on restore: %#v", got)
	}
}

func TestRestoreAfterLogoutIsEmpty(t *testing.T) {
	root := t.TempDir()
	a := testApp(t, root)
	if _, err := a.LoginTeacher("Ms. Lee"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}

	u, err := a.RestoreLastUser()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if u != nil {
		t.Fatalf("expected empty snapshot after logout, got %#v", u)
	}
}

func TestUnknownStorageBackendRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageBackend = "redis"
	cfg.StorageRoot = t.TempDir()
	if _, err := NewApplication(cfg, true); err == nil {
		t.Fatalf("expected an error for backend %q", cfg.StorageBackend)
	}
}

func TestSendMessageLeavesCallerSessionUntouched(t *testing.T) {
	a := testApp(t, t.TempDir())
	if _, err := a.LoginTeacher("Ms. Lee"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := a.UpdateClassroom("be brief", "key-1"); err != nil {
		t.Fatalf("update classroom: %v", err)
	}

	sess, err := a.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	sess, err = a.SendMessage(context.Background(), sess, "first question")
	if err != nil {
		t.Fatalf("seed send: %v", err)
	}
	before := len(sess.Messages)

	// Keep walking the on-screen transcript while the next send runs, the
	// way the UI redraws with a call in flight.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for i := range sess.Messages {
					_ = sess.Messages[i].Text
				}
			}
		}
	}()

	updated, err := a.SendMessage(context.Background(), sess, "second question")
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sess.Messages) != before {
		t.Fatalf("caller's session was mutated: %d -> %d messages", before, len(sess.Messages))
	}
	if len(updated.Messages) != before+2 {
		t.Fatalf("expected %d messages on the returned session, got %d", before+2, len(updated.Messages))
	}
	updated.Messages[0].Text = "scribble"
	if sess.Messages[0].Text == "scribble" {
		t.Fatalf("returned session shares message storage with the caller's")
	}
}

func TestLogoutWhileSendInFlight(t *testing.T) {
	a := testApp(t, t.TempDir())
	if _, err := a.LoginTeacher("Ms. Lee"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := a.UpdateClassroom("be brief", "key-1"); err != nil {
		t.Fatalf("update classroom: %v", err)
	}
	sess, err := a.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.SendMessage(context.Background(), sess, "hello")
		done <- err
	}()
	if err := a.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send racing a logout must still complete: %v", err)
	}
}

func TestStudentSeesTeacherEditAfterFocus(t *testing.T) {
	root := t.TempDir()
	teacher := testApp(t, root)
	room, err := teacher.LoginTeacher("Ms. Lee")
	if err != nil {
		t.Fatalf("teacher login: %v", err)
	}
	student := testApp(t, root)
	if _, err := student.LoginStudent("Sam", room.Code); err != nil {
		t.Fatalf("student login: %v", err)
	}

	if _, err := teacher.UpdateClassroom("new rules", "key-2"); err != nil {
		t.Fatalf("update: %v", err)
	}

	student.SyncFocus()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := student.Classroom(); got != nil && got.APIKey == "key-2" && got.SystemInstruction == "new rules" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("student cache never refreshed: %#v", student.Classroom())
}
