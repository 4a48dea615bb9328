package order

import (
	"context"
	"crypto/rand"
	"regexp"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const (
	codePrefix = "WL-"
	codeLength = 8
	// codeAlphabet excludes 0/O, 1/I/L and lowercase so codes survive
	// phone calls and handwriting.
	codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	maxCodeAttempts = 5

	// Sizing for the in-process filter of codes this instance has issued or
	// observed. At 1M entries and 1% FPR the filter costs about 1.2 MB.
	bloomCapacity = 1_000_000
	bloomFPR      = 0.01
)

// ErrCodeGenerationExhausted is returned when every generation attempt
// collided with an existing code. With an 8-character code over a
// 31-letter alphabet this indicates a broken repository, not bad luck.
var ErrCodeGenerationExhausted = errors.New("tracking code generation exhausted")

var codePattern = regexp.MustCompile(`^WL-[23456789ABCDEFGHJKMNPQRSTUVWXYZ]{8}$`)

// IsTrackingCode reports whether s has the tracking code format. Used to
// distinguish customer-facing codes from internal order IDs in lookups.
func IsTrackingCode(s string) bool {
	return codePattern.MatchString(s)
}

// TrackingCodeIndex answers whether a tracking code is already assigned.
type TrackingCodeIndex interface {
	TrackingCodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator produces unique, human-readable tracking codes. A bloom
// filter of codes seen by this process skips the repository existence query
// for codes that are definitely fresh; the repository check (and ultimately
// the unique index on the orders table) stays authoritative.
type CodeGenerator struct {
	index TrackingCodeIndex

	mu   sync.Mutex
	seen *bloom.BloomFilter
}

// NewCodeGenerator creates a CodeGenerator backed by the given index.
func NewCodeGenerator(index TrackingCodeIndex) *CodeGenerator {
	return &CodeGenerator{
		index: index,
		seen:  bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
}

// Generate returns a fresh tracking code, retrying on collision up to
// maxCodeAttempts times before failing with ErrCodeGenerationExhausted.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", errors.Wrap(err, "generate code")
		}

		g.mu.Lock()
		maybeSeen := g.seen.TestString(code)
		if !maybeSeen {
			g.seen.AddString(code)
		}
		g.mu.Unlock()

		if maybeSeen {
			// Likely issued before (or a filter false positive): go straight
			// to another attempt instead of querying storage.
			continue
		}

		exists, err := g.index.TrackingCodeExists(ctx, code)
		if err != nil {
			return "", errors.Wrap(err, "check code uniqueness")
		}
		if exists {
			continue
		}
		return code, nil
	}

	return "", ErrCodeGenerationExhausted
}

// Observe records an externally assigned code in the bloom filter so later
// generations avoid it without a storage round trip.
func (g *CodeGenerator) Observe(code string) {
	g.mu.Lock()
	g.seen.AddString(code)
	g.mu.Unlock()
}

// codeByteCeiling is the largest multiple of the alphabet size that fits in
// a byte. Random bytes at or above it are rejected so every alphabet
// character stays equally likely.
const codeByteCeiling = byte(256 - 256%len(codeAlphabet))

func randomCode() (string, error) {
	out := make([]byte, 0, len(codePrefix)+codeLength)
	out = append(out, codePrefix...)

	buf := make([]byte, codeLength)
	for len(out) < cap(out) {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= codeByteCeiling {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == cap(out) {
				break
			}
		}
	}
	return string(out), nil
}
