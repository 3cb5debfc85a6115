package record

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEnvelope     = errors.New("invalid envelope")
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrRemoteRejected      = errors.New("remote rejected")
	ErrRemoteTimeout       = errors.New("remote timeout")
	ErrTransport           = errors.New("transport error")
	ErrAuthExpired         = errors.New("auth expired")
	ErrLocalPersistence    = errors.New("local persistence failed")
)

// DuplicateSubmissionError запись с таким же естественным ключом уже есть локально
type DuplicateSubmissionError struct {
	Kind       Kind
	Reason     string
	ExistingID int64
}

func (e *DuplicateSubmissionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("duplicate %s submission (existing id %d)", e.Kind, e.ExistingID)
}

func (e *DuplicateSubmissionError) Unwrap() error {
	return ErrDuplicateSubmission
}

// RemoteError ошибка удаленного вызова.
// Kind - одна из ErrRemoteRejected, ErrRemoteTimeout, ErrTransport.
type RemoteError struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *RemoteError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable сообщает, имеет ли смысл повторять вызов в рамках одного прохода.
// Отказы сервера (4xx) повторяются только следующим проходом синхронизации.
func (e *RemoteError) Retryable() bool {
	if errors.Is(e.Kind, ErrRemoteRejected) {
		return e.Status >= 500 || e.Status == 429
	}
	return true
}

// LocalPersistenceError локальная запись не удалась, гарантия offline-first под угрозой
type LocalPersistenceError struct {
	Op  string
	Err error
}

func (e *LocalPersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrLocalPersistence, e.Op, e.Err)
}

func (e *LocalPersistenceError) Unwrap() []error {
	return []error{ErrLocalPersistence, e.Err}
}

// Persistence оборачивает ошибку хранилища.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LocalPersistenceError{Op: op, Err: err}
}
