package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/sailsync/internal/model"
)

// Errors
var (
	ErrInvalidToken = errors.New("invalid identity token")
	ErrNoVerifier   = errors.New("identity verification is not configured")
)

// Verifier checks a bearer credential with an external identity service
// and returns the verified subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Credential is what a client presents when joining. Both fields are optional.
type Credential struct {
	Token     string
	ClaimedID string
}

// Identity is the outcome of resolution
type Identity struct {
	PlayerID model.PlayerID
	// Verified is false for connection-scoped identities that cannot be
	// recovered after disconnect.
	Verified bool
}

// Resolver turns a connection and optional credential into a player id.
// It never fails: verification problems degrade to an ephemeral identity.
type Resolver struct {
	verifier Verifier
	timeout  time.Duration
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil verifier treats every credential as unverifiable.
func NewResolver(verifier Verifier, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		verifier: verifier,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "identity")),
	}
}

// Ephemeral returns the connection-scoped player id
func Ephemeral(conn model.ConnectionID) model.PlayerID {
	return model.PlayerID(model.EphemeralPrefix + string(conn))
}

// Verified returns the stable player id for a verified subject
func Verified(subject string) model.PlayerID {
	return model.PlayerID(model.VerifiedPrefix + subject)
}

// Resolve picks the player id for a joining connection
func (r *Resolver) Resolve(ctx context.Context, conn model.ConnectionID, cred Credential) Identity {
	ephemeral := Identity{PlayerID: Ephemeral(conn)}
	if cred.Token == "" {
		return ephemeral
	}

	subject, err := r.verify(ctx, cred.Token)
	if err != nil {
		r.logger.Warn("identity verification failed, using ephemeral identity",
			slog.String("connection_id", string(conn)),
			slog.String("error", err.Error()),
		)
		return ephemeral
	}
	if subject != cred.ClaimedID {
		r.logger.Warn("verified subject does not match claimed identity, using ephemeral identity",
			slog.String("connection_id", string(conn)),
			slog.String("claimed_id", cred.ClaimedID),
		)
		return ephemeral
	}

	return Identity{PlayerID: Verified(subject), Verified: true}
}

func (r *Resolver) verify(ctx context.Context, token string) (string, error) {
	if r.verifier == nil {
		return "", ErrNoVerifier
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type result struct {
		subject string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		subject, err := r.verifier.Verify(ctx, token)
		done <- result{subject, err}
	}()

	// A verifier that ignores ctx still cannot hold the join past the deadline
	select {
	case res := <-done:
		if res.err == nil && res.subject == "" {
			return "", ErrInvalidToken
		}
		return res.subject, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
