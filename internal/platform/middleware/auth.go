package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "kycgate/pkg/domain-errors"
	"kycgate/pkg/platform/httputil"
	"kycgate/pkg/requestcontext"
)

// RoleReviewer is the role claim required on reviewer routes.
const RoleReviewer = "reviewer"

// ReviewerClaims is the token body issued to human reviewers.
type ReviewerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ReviewerTokenValidator checks HS256 reviewer tokens.
type ReviewerTokenValidator struct {
	key    []byte
	parser *jwt.Parser
}

func NewReviewerTokenValidator(key string) *ReviewerTokenValidator {
	return &ReviewerTokenValidator{
		key: []byte(key),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Validate returns the reviewer ID carried in the subject claim.
func (v *ReviewerTokenValidator) Validate(token string) (string, error) {
	claims := &ReviewerClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return "", err
	}
	if claims.Role != RoleReviewer {
		return "", errors.New("token lacks reviewer role")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// IssueReviewerToken signs a token for reviewerID. Used by kycctl and tests.
func IssueReviewerToken(key, reviewerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ReviewerClaims{
		Role: RoleReviewer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   reviewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// RequireReviewer rejects requests without a valid reviewer bearer token and
// stores the reviewer ID on the context.
func RequireReviewer(v *ReviewerTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "reviewer route without bearer token",
					"request_id", requestcontext.RequestID(ctx))
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			reviewerID, err := v.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "reviewer token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx))
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithReviewerID(ctx, reviewerID)))
		})
	}
}
