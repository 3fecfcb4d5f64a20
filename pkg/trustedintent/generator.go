// Package trustedintent sanitizes an approved canonical intent into the
// frozen, hashed, and signed TrustedIntent the execution dispatcher
// accepts (§4.8).
package trustedintent

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sentryforge/gateway/pkg/canonicalize"
	"github.com/sentryforge/gateway/pkg/crypto"
	"github.com/sentryforge/gateway/pkg/schema"
)

const (
	maxTopicIDLength   = 100
	defaultContentRefCap = 10
)

var (
	topicStripPattern = regexp.MustCompile(`[^a-z0-9_]`)
	topicLeadPattern  = regexp.MustCompile(`^[a-z_]`)
	contentRefPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,100}$`)
)

// Generator produces TrustedIntent values. now and newID are overridable
// for deterministic tests; nil defaults to time.Now and uuid.NewString.
type Generator struct {
	signer         *crypto.SigningRing
	contentRefCap  int
	now            func() time.Time
	newID          func() string
}

// New builds a Generator signing with ring.
func New(ring *crypto.SigningRing) *Generator {
	return &Generator{
		signer:        ring,
		contentRefCap: defaultContentRefCap,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// WithClock overrides the time source, for deterministic tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithIDGenerator overrides id generation, for deterministic tests.
func (g *Generator) WithIDGenerator(newID func() string) *Generator {
	g.newID = newID
	return g
}

// Generate runs the §4.8 seven-step algorithm. ceilings clamps numeric
// constraint values (step 3); pass the active policy's ConstraintCeilings.
func (g *Generator) Generate(intent schema.Intent, userID, sessionID string, ceilings map[string]float64) (schema.TrustedIntent, error) {
	topicID, err := sanitizeTopic(intent.Topic)
	if err != nil {
		return schema.TrustedIntent{}, fmt.Errorf("%w: topic: %v", schema.ErrSanitization, err)
	}

	contentRefs, err := sanitizeContentRefs(intent.ContentRefs, g.contentRefCap)
	if err != nil {
		return schema.TrustedIntent{}, fmt.Errorf("%w: content_refs: %v", schema.ErrSanitization, err)
	}

	constraints := clampConstraints(intent.Constraints, ceilings)
	expertise := intent.DedupeExpertise()

	ti := schema.TrustedIntent{
		ID:          g.newID(),
		CreatedAt:   g.now(),
		UserID:      userID,
		SessionID:   sessionID,
		Action:      intent.Action,
		TopicID:     topicID,
		Expertise:   expertise,
		Constraints: constraints,
		ContentRefs: contentRefs,
	}

	hash, err := canonicalize.CanonicalHash(ti.CanonicalFields())
	if err != nil {
		return schema.TrustedIntent{}, fmt.Errorf("trustedintent: canonical hash: %w", err)
	}
	ti.ContentHash = hash

	sig, err := g.signer.Sign([]byte(hash))
	if err != nil {
		return schema.TrustedIntent{}, fmt.Errorf("trustedintent: sign: %w", err)
	}
	ti.Signature = sig

	return ti, nil
}

// sanitizeTopic implements §4.8 step 1. Idempotent: re-running it on its
// own output returns the same string (property 8), since the output
// already satisfies every constraint the function enforces.
func sanitizeTopic(topic string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(topic))
	collapsed := strings.Join(strings.Fields(lower), "_")
	stripped := topicStripPattern.ReplaceAllString(collapsed, "")

	if len(stripped) > maxTopicIDLength {
		stripped = stripped[:maxTopicIDLength]
	}

	if stripped == "" {
		return "", fmt.Errorf("sanitized topic %q has no leading letter or underscore", stripped)
	}
	if !topicLeadPattern.MatchString(stripped) {
		stripped = "_" + stripped
		if len(stripped) > maxTopicIDLength {
			stripped = stripped[:maxTopicIDLength]
		}
	}
	return stripped, nil
}

// sanitizeContentRefs implements §4.8 step 2: validates each ref against
// the allowed character set and caps cardinality.
func sanitizeContentRefs(refs []string, cap int) ([]string, error) {
	if len(refs) > cap {
		return nil, fmt.Errorf("content_refs cardinality %d exceeds cap %d", len(refs), cap)
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if strings.ContainsAny(r, "\n\r") || !contentRefPattern.MatchString(r) {
			return nil, fmt.Errorf("content ref %q is invalid", r)
		}
		out = append(out, r)
	}
	return out, nil
}

// clampConstraints implements §4.8 step 3: drops unknown keys and clamps
// numerics to policy ceilings.
func clampConstraints(c schema.Constraints, ceilings map[string]float64) schema.Constraints {
	out := schema.Constraints{Values: make(map[string]float64)}
	for key, value := range c.Values {
		if !schema.KnownConstraintKeys[key] {
			continue
		}
		if ceiling, ok := ceilings[key]; ok && value > ceiling {
			value = ceiling
		}
		out.Values[key] = value
	}
	out.Deadline = c.Deadline
	return out
}
