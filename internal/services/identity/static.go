package identity

import "context"

// StaticVerifier accepts a fixed table of tokens. It is meant for local
// development and tests where no identity service is reachable.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier from a token to subject table
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	copied := make(map[string]string, len(tokens))
	for token, subject := range tokens {
		copied[token] = subject
	}
	return &StaticVerifier{tokens: copied}
}

var _ Verifier = (*StaticVerifier)(nil)

func (v *StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	subject, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return subject, nil
}
