package postgres

import (
	"strings"
	"time"

	"github.com/otherjamesbrown/agency-service/internal/domain"
)

// likePattern escapes LIKE metacharacters and wraps s for substring matching.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func dateArg(d domain.Date) time.Time {
	return d.Time
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}

func prefixColumns(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}
