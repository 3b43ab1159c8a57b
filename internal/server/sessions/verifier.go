package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authbridge/internal/common"
	"github.com/dmitrijs2005/authbridge/internal/provider"
)

// ErrUnauthenticated means the request carries no usable session.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the signed-in user behind a request.
type Principal struct {
	UserID      string
	Email       string
	Phone       string
	AccessToken string
}

// TokenVerifier turns an access token into a Principal. It returns
// ErrUnauthenticated for tokens that are bad or expired; any other error is
// an infrastructure fault.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*Principal, error)
}

// UserGetter is the provider call used to check a token remotely.
type UserGetter interface {
	GetUser(ctx context.Context, accessToken string) (*provider.User, error)
}

// NewVerifier checks tokens locally when jwtSecret is set and asks the
// provider otherwise.
func NewVerifier(jwtSecret string, users UserGetter) TokenVerifier {
	if jwtSecret != "" {
		return &JWTVerifier{secret: []byte(jwtSecret)}
	}
	return &ProviderVerifier{users: users}
}

// JWTVerifier validates HS256 access tokens with the project's JWT secret.
type JWTVerifier struct {
	secret []byte
}

func (v *JWTVerifier) Verify(_ context.Context, accessToken string) (*Principal, error) {
	claims, err := provider.VerifyClaims(accessToken, v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return &Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Phone:       claims.Phone,
		AccessToken: accessToken,
	}, nil
}

// ProviderVerifier asks the provider who owns the token. It also catches
// tokens revoked by sign-out, which local verification cannot.
type ProviderVerifier struct {
	users UserGetter
}

func (v *ProviderVerifier) Verify(ctx context.Context, accessToken string) (*Principal, error) {
	u, err := v.users.GetUser(ctx, accessToken)
	if err != nil {
		if apiErr, ok := provider.AsAPIError(err); ok && apiErr.IsClientError() {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return &Principal{UserID: u.ID, Email: u.Email, Phone: u.Phone, AccessToken: accessToken}, nil
}
