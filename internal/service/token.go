package service

import (
	"context"

	"github.com/livekit/protocol/auth"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Owill27/livekit/internal/config"
	"github.com/Owill27/livekit/internal/domain"
)

// TokenService mints short-lived LiveKit room join credentials. The core
// never talks to the media server itself; the token is all a client needs
// to join the room under its own identity.
type TokenService struct {
	conf config.LiveKit
}

func NewTokenService(conf config.LiveKit) *TokenService {
	return &TokenService{conf: conf}
}

// Issue returns a signed token granting join/publish/subscribe rights on
// the room to the given identity.
func (s *TokenService) Issue(ctx context.Context, room, identity string) (string, error) {
	_, span := tracer.Start(ctx, "Token.Service.Issue")
	defer span.End()
	span.SetAttributes(
		attribute.String("room", room),
		attribute.String("identity", identity),
	)

	var missing string
	switch {
	case s.conf.APIKey == "":
		missing = "LIVEKIT_API_KEY"
	case s.conf.APISecret == "":
		missing = "LIVEKIT_API_SECRET"
	case s.conf.URL == "":
		missing = "LIVEKIT_URL"
	}
	if missing != "" {
		err := domain.MisconfiguredError{Missing: missing}
		span.RecordError(err)
		return "", err
	}

	if room == "" {
		err := domain.InvalidArgumentError{Reason: `missing "room" query parameter`}
		span.RecordError(err)
		return "", err
	}
	if identity == "" {
		err := domain.InvalidArgumentError{Reason: `missing "id" query parameter`}
		span.RecordError(err)
		return "", err
	}

	grant := &auth.VideoGrant{
		Room:     room,
		RoomJoin: true,
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)

	at := auth.NewAccessToken(s.conf.APIKey, s.conf.APISecret).
		SetIdentity(identity).
		SetVideoGrant(grant).
		SetValidFor(s.conf.TokenTTL.Duration())

	token, err := at.ToJWT()
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return token, nil
}
