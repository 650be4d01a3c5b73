package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.LoginRedirector = (*LoginHint)(nil)

// LoginHint is the CLI's login entry point: it tells the operator to log in
// again, once per process, and notifies any listener (the dashboard).
type LoginHint struct {
	mu       sync.Mutex
	w        io.Writer
	printed  bool
	listener func(reason string)
}

// NewLoginHint writes hints to w.
func NewLoginHint(w io.Writer) *LoginHint {
	return &LoginHint{w: w}
}

// RedirectToLogin prints the hint the first time it is called.
func (h *LoginHint) RedirectToLogin(reason string) {
	h.mu.Lock()
	listener := h.listener
	first := !h.printed
	h.printed = true
	h.mu.Unlock()

	if first {
		fmt.Fprintf(h.w, "%s. Run 'm365ctl auth login' to continue.\n", capitalise(reason))
	}
	if listener != nil {
		listener(reason)
	}
}

// OnRedirect registers fn to be called on every redirect.
func (h *LoginHint) OnRedirect(fn func(reason string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = fn
}

func capitalise(s string) string {
	if s == "" {
		return "Session ended"
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
