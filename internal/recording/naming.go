package recording

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"testrec/internal/models"
)

// IDLayout is the timestamp half of a capture id
const IDLayout = "2006-01-02_15-04-05"

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// IDGenerator builds a capture id for a recording that starts at now
type IDGenerator func(now time.Time) (string, error)

// NewCaptureID returns <timestamp>_<6 random [a-z0-9]>
func NewCaptureID(now time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString(now.Format(IDLayout))
	sb.WriteByte('_')
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate capture id: %w", err)
		}
		sb.WriteByte(idAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// BuildFolder joins the normalized category values, feature and scenario
// with the raw id. Segments that normalize to nothing are skipped.
func BuildFolder(categories models.Categories, feature, scenario, id string) string {
	segments := make([]string, 0, len(categories)+3)
	for _, value := range categories.Values() {
		if seg := NormalizeSegment(value); seg != "" {
			segments = append(segments, seg)
		}
	}
	for _, value := range []string{feature, scenario} {
		if seg := NormalizeSegment(value); seg != "" {
			segments = append(segments, seg)
		}
	}
	segments = append(segments, id)
	return strings.Join(segments, "/")
}

// NormalizeSegment lower-cases s, drops punctuation and joins words with '_'
func NormalizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}
