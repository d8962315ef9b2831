package vstore

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataError(t *testing.T) {
	err := dataErrf([]byte{1, 2}, 1, nil, "bad %s", "thing")
	assert.Equal(t, "bad thing: (2) 0102", err.Error())

	err = dataErrf([]byte{0xAB}, 0, io.ErrUnexpectedEOF, "short")
	assert.Equal(t, "short: unexpected EOF: (1) ab", err.Error())
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	long := bytes.Repeat([]byte{0xCD}, 200)
	msg := dataErrf(long, 0, nil, "long").Error()
	assert.True(t, strings.HasPrefix(msg, "long: (200) cdcd"), msg)
	assert.Contains(t, msg, "...")
	assert.Less(t, len(msg), 250)
}

func TestStoreError(t *testing.T) {
	err := storeErrf("users", "email", "a@x", ErrConstraint, "")
	assert.Equal(t, "users.email/a@x: unique index constraint violated", err.Error())
	assert.ErrorIs(t, err, ErrConstraint)

	err = storeErrf("users", "", nil, ErrUnknownStore, "missing bucket %s", "data")
	assert.Equal(t, "users: missing bucket data: unknown store", err.Error())

	var serr *StoreError
	assert.True(t, errors.As(err, &serr))
	assert.Equal(t, "users", serr.Store)
}
