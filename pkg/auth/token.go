package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// clock skew tolerated between API instances when checking exp and iat
const tokenLeeway = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var (
	errSecretRequired = errors.New("jwt secret is required")
	errIssuerRequired = errors.New("jwt issuer is required")
	errDealerIDClaim  = errors.New("dealer tokens require a dealer id")
)

func checkConfig(cfg config.JWTConfig, minting bool) error {
	switch {
	case cfg.Secret == "":
		return errSecretRequired
	case cfg.Issuer == "":
		return errIssuerRequired
	case minting && cfg.ExpirationMinutes <= 0:
		return fmt.Errorf("jwt expiration minutes must be positive, got %d", cfg.ExpirationMinutes)
	}
	return nil
}

// Validate runs after the registered-claim checks on every parse that
// validates claims.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token has no user id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	if c.Role == enums.RoleDealer && c.DealerID == nil {
		return errDealerIDClaim
	}
	return nil
}

// MintAccessToken signs an HS256 token valid for cfg.ExpirationMinutes from now.
// A blank payload JTI gets a random one so logout can revoke the token.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg, true); err != nil {
		return "", err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:   payload.UserID,
		Email:    payload.Email,
		Role:     payload.Role,
		DealerID: payload.DealerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry.
func ParseAccessToken(cfg config.JWTConfig, token string) (*AccessTokenClaims, error) {
	return parseAccessToken(cfg, token, jwt.WithLeeway(tokenLeeway), jwt.WithIssuedAt(), jwt.WithExpirationRequired())
}

// ParseAccessTokenAllowExpired only verifies the signature so logout can
// still revoke the jti of a token that already expired.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, token string) (*AccessTokenClaims, error) {
	return parseAccessToken(cfg, token, jwt.WithoutClaimsValidation())
}

func parseAccessToken(cfg config.JWTConfig, token string, opts ...jwt.ParserOption) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg, false); err != nil {
		return nil, err
	}
	opts = append(opts, jwt.WithValidMethods([]string{signingMethod.Alg()}), jwt.WithIssuer(cfg.Issuer))

	claims := &AccessTokenClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
