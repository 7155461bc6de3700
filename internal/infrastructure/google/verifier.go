package google

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var (
	ErrInvalidIDToken   = errors.New("invalid google id token")
	ErrEmailNotVerified = errors.New("google email not verified")
)

// Identity 从 ID Token 中取出的玩家信息
type Identity struct {
	Subject    string
	Email      string
	Name       string
	GivenName  string
	FamilyName string
}

// IDTokenVerifier 校验签名、过期时间和 audience
type IDTokenVerifier struct {
	clientID string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{
		clientID: clientID,
		validate: idtoken.Validate,
	}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, ErrInvalidIDToken
	}

	payload, err := v.validate(ctx, rawToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	return identityFromPayload(payload)
}

func identityFromPayload(payload *idtoken.Payload) (*Identity, error) {
	if payload.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidIDToken)
	}

	claim := func(name string) string {
		s, _ := payload.Claims[name].(string)
		return s
	}

	// email_verified 可能是 bool 也可能是字符串
	switch verified := payload.Claims["email_verified"].(type) {
	case bool:
		if !verified {
			return nil, ErrEmailNotVerified
		}
	case string:
		if verified != "true" {
			return nil, ErrEmailNotVerified
		}
	}

	email := claim("email")
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidIDToken)
	}

	return &Identity{
		Subject:    payload.Subject,
		Email:      email,
		Name:       claim("name"),
		GivenName:  claim("given_name"),
		FamilyName: claim("family_name"),
	}, nil
}
