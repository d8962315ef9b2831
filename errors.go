package vstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed         = errors.New("database closed")
	ErrFailed         = errors.New("database failed to open")
	ErrNotReady       = errors.New("schema not ready")
	ErrUpgradeBlocked = errors.New("version upgrade blocked by open connections")
	ErrVersionTooLow  = errors.New("requested version is lower than the stored version")
	ErrUnknownStore   = errors.New("unknown store")
	ErrUnknownIndex   = errors.New("unknown index")
	ErrStoreExists    = errors.New("store already exists")
	ErrInvalidKey     = errors.New("invalid key")
	ErrKeyExists      = errors.New("key already exists")
	ErrConstraint     = errors.New("unique index constraint violated")
	ErrInvalidQuery   = errors.New("invalid query")
	ErrTxDone         = errors.New("transaction already finished")
	ErrReadOnly       = errors.New("transaction is read-only")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// StoreError attaches store, index and key context to an engine failure.
type StoreError struct {
	Store string
	Index string
	Key   any
	Msg   string
	Err   error
}

func storeErrf(store, index string, key any, err error, format string, args ...any) error {
	return &StoreError{store, index, key, fmt.Sprintf(format, args...), err}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Store)
	if e.Index != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Index)
	}
	if e.Key != nil {
		fmt.Fprintf(&buf, "/%v", e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
