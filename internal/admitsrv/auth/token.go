package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/admitcommon"
	"github.com/admitd/admitd/internal/admitsrv/config"
	"github.com/admitd/admitd/internal/common/apperrors"
	"github.com/admitd/admitd/internal/common/uuid"
)

const audience = "admitd"

// CreateIdentityToken mints an EdDSA-signed identity token for an operator.
func (m *Manager) CreateIdentityToken(ctx context.Context, operator admitcommon.OperatorID) (string, time.Time, apperrors.Error) {
	tokenDuration, goerr := config.Config().Auth.GetIdentityTokenValidity()
	if goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Msg("unable to parse token duration")
		return "", time.Time{}, ErrTokenGeneration.MsgErr("unable to parse token duration", goerr)
	}

	now := time.Now()
	tokenExpiry := now.Add(tokenDuration)
	claims := jwt.MapClaims{
		"token_use": string(admitcommon.IdentityTokenUse),
		"sub":       "operator/" + string(operator),
		"iss":       config.Config().ServerHostName + ":" + config.Config().ServerPort,
		"exp":       jwt.NewNumericDate(tokenExpiry),
		"iat":       jwt.NewNumericDate(now),
		"nbf":       jwt.NewNumericDate(now.Add(-2 * time.Minute)), // 2-minute skew buffer
		"aud":       []string{audience},
		"jti":       uuid.New().String(),
		"ver":       string(admitcommon.TokenVersionV0_1),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)

	signingKey, apperr := m.keys.GetActiveKey(ctx)
	if apperr != nil {
		log.Ctx(ctx).Error().Err(apperr).Msg("unable to get active signing key")
		return "", time.Time{}, ErrTokenGeneration.Err(apperr)
	}
	token.Header["kid"] = signingKey.KeyID.String()

	tokenString, goerr := token.SignedString(signingKey.PrivateKey)
	if goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Msg("unable to sign token")
		return "", time.Time{}, ErrTokenGeneration.MsgErr("unable to sign token", goerr)
	}
	return tokenString, tokenExpiry, nil
}

// ValidateIdentityToken verifies an identity token and returns the operator it
// names.
func (m *Manager) ValidateIdentityToken(ctx context.Context, tokenString string) (admitcommon.OperatorID, apperrors.Error) {
	signingKey, apperr := m.keys.GetActiveKey(ctx)
	if apperr != nil {
		return "", ErrInvalidToken.Err(apperr)
	}

	token, goerr := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return ed25519.PublicKey(signingKey.PublicKey), nil
		},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if goerr != nil {
		if errors.Is(goerr, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken.Err(goerr)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if use, _ := claims["token_use"].(string); use != string(admitcommon.IdentityTokenUse) {
		return "", ErrInvalidToken.Msg("token is not an identity token")
	}
	sub, _ := claims["sub"].(string)
	const prefix = "operator/"
	if len(sub) <= len(prefix) || sub[:len(prefix)] != prefix {
		return "", ErrInvalidToken.Msg("token has no operator subject")
	}
	return admitcommon.OperatorID(sub[len(prefix):]), nil
}
