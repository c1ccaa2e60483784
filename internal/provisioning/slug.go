package provisioning

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"tenant-service/internal/model"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 100

// reservedSlugs collide with top-level routes and are never handed out bare
var reservedSlugs = map[string]struct{}{
	"login":      {},
	"logout":     {},
	"register":   {},
	"onboarding": {},
	"dashboard":  {},
	"manager":    {},
	"health":     {},
	"metrics":    {},
}

// Slugify folds a proposed name to lowercase ASCII alphanumeric tokens joined by hyphens
func Slugify(name string) (string, error) {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(folder, name)
	if err != nil {
		return "", fmt.Errorf("%w: cannot normalize name", model.ErrValidation)
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "", fmt.Errorf("%w: name must contain at least one letter or digit", model.ErrValidation)
	}
	return slug, nil
}

// Candidates returns up to limit slugs to try in order: base, base-2, base-3, ...
// A reserved base starts directly at base-2.
func Candidates(base string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	out := make([]string, 0, limit)
	n := 1
	if _, reserved := reservedSlugs[base]; reserved {
		n = 2
	}
	for ; len(out) < limit; n++ {
		if n == 1 {
			out = append(out, base)
			continue
		}
		out = append(out, base+"-"+strconv.Itoa(n))
	}
	return out
}
