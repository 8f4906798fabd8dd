package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tradepost/internal/audit"
	"tradepost/internal/domain"
	"tradepost/internal/storage/memory"
	dErrors "tradepost/pkg/domain-errors"
	"tradepost/pkg/requestcontext"
)

type IdentityServiceSuite struct {
	suite.Suite
	service   *Service
	publisher *audit.Publisher
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.publisher = audit.NewPublisher(16, logger)
	s.service = NewService(memory.New(), s.publisher, nil, logger)
}

func (s *IdentityServiceSuite) callerCtx(addr string) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), domain.Address(addr))
	return requestcontext.WithTime(ctx, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func (s *IdentityServiceSuite) TestRegister() {
	s.Run("creates the profile for the caller", func() {
		user, err := s.service.Register(s.callerCtx("0xalice"), "alice")
		s.Require().NoError(err)
		s.Equal("alice", user.Username)
		s.Equal("0xalice", user.Address.String())
		s.False(user.CreatedAt.IsZero())

		event := <-s.publisher.Inbox()
		s.Equal(audit.ActionUserRegistered, event.Action)
		s.Equal(domain.Address("0xalice"), event.Actor)
	})

	s.Run("rejects a second registration for the same address", func() {
		_, err := s.service.Register(s.callerCtx("0xbob"), "bob")
		s.Require().NoError(err)

		_, err = s.service.Register(s.callerCtx("0xbob"), "bobby")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateUser))

		got, err := s.service.Get(context.Background(), "0xbob")
		s.Require().NoError(err)
		s.Equal("bob", got.Username, "first registration wins")
	})

	s.Run("allows two addresses to share a username", func() {
		_, err := s.service.Register(s.callerCtx("0xcarol"), "sam")
		s.Require().NoError(err)
		_, err = s.service.Register(s.callerCtx("0xdan"), "sam")
		s.Require().NoError(err)
	})

	s.Run("rejects an empty username", func() {
		_, err := s.service.Register(s.callerCtx("0xeve"), "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects an unauthenticated caller", func() {
		_, err := s.service.Register(context.Background(), "ghost")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *IdentityServiceSuite) TestGet() {
	_, err := s.service.Register(s.callerCtx("0xalice"), "alice")
	s.Require().NoError(err)

	user, err := s.service.Get(context.Background(), "0xalice")
	s.Require().NoError(err)
	s.Equal("alice", user.Username)

	_, err = s.service.Get(context.Background(), "0xnobody")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
