package devengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"privylocker/internal/confidential"
	"privylocker/pkg/domain"
)

const (
	owner    = domain.Principal("owner-1")
	verifier = domain.Principal("verifier-1")
	stranger = domain.Principal("stranger")
)

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	e, err := NewRandom()
	s.Require().NoError(err)
	s.engine = e
}

func (s *EngineSuite) handleFor(v uint64) confidential.Handle {
	ct, err := s.engine.Encrypt(ValueOf(v))
	s.Require().NoError(err)
	h, err := s.engine.CreateHandle(s.ctx, ct, owner)
	s.Require().NoError(err)
	return h
}

func (s *EngineSuite) TestCreateHandle() {
	s.Run("creator cannot decrypt until granted", func() {
		h := s.handleFor(42)
		_, err := s.engine.Decrypt(s.ctx, h, owner)
		s.ErrorIs(err, ErrAccessDenied)

		s.Require().NoError(s.engine.GrantAccess(s.ctx, h, owner, owner))
		v, err := s.engine.Decrypt(s.ctx, h, owner)
		s.Require().NoError(err)
		s.Equal(ValueOf(42), v)
	})

	s.Run("rejects tampered ciphertext", func() {
		ct, err := s.engine.Encrypt(ValueOf(1))
		s.Require().NoError(err)
		ct[len(ct)-1] ^= 0xff
		_, err = s.engine.CreateHandle(s.ctx, ct, owner)
		s.ErrorIs(err, ErrMalformedCiphertext)
	})

	s.Run("rejects short ciphertext", func() {
		_, err := s.engine.CreateHandle(s.ctx, []byte("abc"), owner)
		s.ErrorIs(err, ErrMalformedCiphertext)
	})
}

func (s *EngineSuite) TestCombine() {
	s.Run("identity combine yields fresh handle over same value", func() {
		h := s.handleFor(7)
		derived, err := confidential.Rekey(s.ctx, s.engine, h, owner)
		s.Require().NoError(err)
		s.NotEqual(h, derived)

		s.Require().NoError(s.engine.GrantAccess(s.ctx, derived, verifier, owner))
		v, err := s.engine.Decrypt(s.ctx, derived, verifier)
		s.Require().NoError(err)
		s.Equal(ValueOf(7), v)

		_, err = s.engine.Decrypt(s.ctx, h, verifier)
		s.ErrorIs(err, ErrAccessDenied, "grant on derived handle must not leak to the original")
	})

	s.Run("two derivations are independent", func() {
		h := s.handleFor(7)
		a, err := confidential.Rekey(s.ctx, s.engine, h, owner)
		s.Require().NoError(err)
		b, err := confidential.Rekey(s.ctx, s.engine, h, owner)
		s.Require().NoError(err)
		s.NotEqual(a, b)

		s.Require().NoError(s.engine.GrantAccess(s.ctx, a, verifier, owner))
		s.True(s.engine.CanDecrypt(a, verifier))
		s.False(s.engine.CanDecrypt(b, verifier))
	})

	s.Run("adds modulo 2^128", func() {
		s.Equal(Value{}, Value{Hi: ^uint64(0), Lo: ^uint64(0)}.Add(ValueOf(1)))
		s.Equal(Value{Hi: 1}, ValueOf(^uint64(0)).Add(ValueOf(1)))
	})

	s.Run("non-owner cannot combine", func() {
		h := s.handleFor(7)
		_, err := s.engine.Combine(s.ctx, h, confidential.Zero, stranger)
		s.ErrorIs(err, ErrNotHandleOwner)
	})

	s.Run("unknown handle", func() {
		_, err := s.engine.Combine(s.ctx, "missing", confidential.Zero, owner)
		s.ErrorIs(err, ErrUnknownHandle)
	})
}

func (s *EngineSuite) TestAccessLists() {
	h := s.handleFor(9)

	s.Run("only owner manages access", func() {
		s.ErrorIs(s.engine.GrantAccess(s.ctx, h, stranger, stranger), ErrNotHandleOwner)
	})

	s.Run("revoke withdraws decryption", func() {
		s.Require().NoError(s.engine.GrantAccess(s.ctx, h, verifier, owner))
		s.True(s.engine.CanDecrypt(h, verifier))
		s.Require().NoError(s.engine.RevokeAccess(s.ctx, h, verifier, owner))
		s.False(s.engine.CanDecrypt(h, verifier))
	})

	s.Run("zero handle is not grantable", func() {
		s.ErrorIs(s.engine.GrantAccess(s.ctx, confidential.Zero, verifier, owner), ErrUnknownHandle)
	})
}

func (s *EngineSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.engine.CreateHandle(ctx, nil, owner)
	s.ErrorIs(err, context.Canceled)
}
