package underwriter

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// NodeScopedIDs returns a lease ID generator whose IDs carry the name of the
// process that opened the lease, so stray reservations in the store can be
// traced back to a host. The node name comes from POD_UID, HOSTNAME or the
// OS host name, in that order, optionally prefixed.
func NodeScopedIDs(prefix string) (func() string, error) {
	node := firstNonEmpty(os.Getenv("POD_UID"), os.Getenv("HOSTNAME"), readHostname())
	if node == "" {
		return nil, fmt.Errorf("no hostname or env var found for node id")
	}
	parts := make([]string, 0, 2)
	if prefix != "" {
		parts = append(parts, sanitize(prefix))
	}
	parts = append(parts, sanitize(node))
	base := strings.Join(parts, "-")
	return func() string {
		return base + "/" + uuid.NewString()
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func readHostname() string {
	h, _ := os.Hostname()
	return h
}

func sanitize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
}
