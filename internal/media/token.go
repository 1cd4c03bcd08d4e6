package media

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
)

const DefaultTokenTTL = 10 * time.Minute

// TokenService mints the per-participant media tokens for a call's channel.
type TokenService struct {
	apiKey    string
	apiSecret string
	url       string
	ttl       time.Duration
}

func NewTokenService(apiKey, apiSecret, url string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		url:       url,
		ttl:       ttl,
	}
}

func (s *TokenService) URL() string {
	return s.url
}

// NewChannel returns a fresh, unguessable channel name for a call.
func (s *TokenService) NewChannel() string {
	return "room_" + uuid.NewString()
}

// Identity is the media identity of one side of a call. It names the call
// and the role, never the user.
func Identity(callID, role string) string {
	return callID + ":" + role
}

func (s *TokenService) JoinToken(channel, callID, role string) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("empty channel")
	}

	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     channel,
	}

	at.SetIdentity(Identity(callID, role)).
		SetValidFor(s.ttl).
		SetVideoGrant(grant)

	return at.ToJWT()
}
