package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/suyash-sneo/underwriter"
)

const helpText = `commands:
  reserve k=v [k=v ...]   reserve documents and open a pending lease
  confirm <lease>         make the lease's documents permanent
  cancel <lease>          release the lease's documents
  show <lease>            print lease state and documents
  get <key>               read a key straight from the store
  list                    list leases opened in this session
  help                    show this text
  quit                    leave the shell`

// shell tracks the leases opened in one interactive session.
type shell struct {
	client *underwriter.Client
	get    func(ctx context.Context, key string) ([]byte, string, bool, error)
	out    io.Writer

	mu     sync.Mutex
	leases map[string]*underwriter.Lease
	order  []string
}

func newShell(client *underwriter.Client, get func(ctx context.Context, key string) ([]byte, string, bool, error), out io.Writer) *shell {
	return &shell{
		client: client,
		get:    get,
		out:    out,
		leases: map[string]*underwriter.Lease{},
	}
}

// handleCommand runs one line. It reports false when the session should end.
func (s *shell) handleCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	switch strings.ToLower(parts[0]) {
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "quit", "exit":
		return false
	case "reserve":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "usage: reserve k=v [k=v ...]")
			return true
		}
		s.reserve(ctx, parts[1:])
	case "confirm":
		if l := s.lookup(parts, "confirm"); l != nil {
			s.report(l, "confirmed", l.Confirm(ctx))
		}
	case "cancel":
		if l := s.lookup(parts, "cancel"); l != nil {
			s.report(l, "cancelled", l.Cancel(ctx))
		}
	case "show":
		if l := s.lookup(parts, "show"); l != nil {
			s.show(l)
		}
	case "get":
		if len(parts) < 2 {
			fmt.Fprintln(s.out, "usage: get <key>")
			return true
		}
		s.getKey(ctx, parts[1])
	case "list":
		s.list()
	default:
		fmt.Fprintln(s.out, "unknown command, try 'help'")
	}
	return true
}

func (s *shell) reserve(ctx context.Context, pairs []string) {
	docs := make(map[string][]byte, len(pairs))
	for _, p := range pairs {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			fmt.Fprintf(s.out, "invalid pair %q, want key=value\n", p)
			return
		}
		if _, dup := docs[kv[0]]; dup {
			fmt.Fprintf(s.out, "key %s given twice\n", kv[0])
			return
		}
		docs[kv[0]] = []byte(kv[1])
	}
	lease, err := s.client.Lease(ctx, docs)
	if err != nil {
		fmt.Fprintf(s.out, "reserve failed: %s\n", describe(err))
		return
	}
	s.mu.Lock()
	s.leases[lease.ID()] = lease
	s.order = append(s.order, lease.ID())
	s.mu.Unlock()
	fmt.Fprintf(s.out, "lease %s pending (%s)\n", lease.ID(), strings.Join(lease.Keys(), ", "))
}

func (s *shell) lookup(parts []string, cmd string) *underwriter.Lease {
	if len(parts) < 2 {
		fmt.Fprintf(s.out, "usage: %s <lease>\n", cmd)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[parts[1]]; ok {
		return l
	}
	// Accept any unambiguous prefix of a lease id.
	var match *underwriter.Lease
	for id, l := range s.leases {
		if strings.HasPrefix(id, parts[1]) {
			if match != nil {
				fmt.Fprintf(s.out, "lease prefix %s is ambiguous\n", parts[1])
				return nil
			}
			match = l
		}
	}
	if match == nil {
		fmt.Fprintf(s.out, "no lease %s\n", parts[1])
	}
	return match
}

func (s *shell) report(l *underwriter.Lease, verb string, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "lease %s: %s (state %s)\n", l.ID(), describe(err), l.State())
		return
	}
	fmt.Fprintf(s.out, "lease %s %s\n", l.ID(), verb)
}

func (s *shell) show(l *underwriter.Lease) {
	fmt.Fprintf(s.out, "lease %s %s\n", l.ID(), l.State())
	docs := l.Documents()
	for _, k := range l.Keys() {
		etag := docs[k].ETag
		if etag == "" {
			etag = "-"
		}
		fmt.Fprintf(s.out, "  %s = %s (etag %s)\n", k, docs[k].Value, etag)
	}
}

func (s *shell) getKey(ctx context.Context, key string) {
	val, etag, ok, err := s.get(ctx, key)
	switch {
	case err != nil:
		fmt.Fprintf(s.out, "get failed: %v\n", err)
	case !ok:
		fmt.Fprintf(s.out, "%s not found\n", key)
	default:
		fmt.Fprintf(s.out, "%s = %s (etag %s)\n", key, val, etag)
	}
}

func (s *shell) list() {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	leases := make([]*underwriter.Lease, len(ids))
	for i, id := range ids {
		leases[i] = s.leases[id]
	}
	s.mu.Unlock()
	if len(ids) == 0 {
		fmt.Fprintln(s.out, "no leases")
		return
	}
	for _, l := range leases {
		fmt.Fprintf(s.out, "%s %-9s %s\n", l.ID(), l.State(), strings.Join(l.Keys(), ","))
	}
}

func describe(err error) string {
	var uerr *underwriter.Error
	if errors.As(err, &uerr) && len(uerr.Keys) > 0 {
		keys := append([]string(nil), uerr.Keys...)
		sort.Strings(keys)
		return fmt.Sprintf("%s on %s", uerr.Kind, strings.Join(keys, ", "))
	}
	return err.Error()
}
