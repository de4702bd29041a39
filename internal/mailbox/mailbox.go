// Package mailbox cross-checks the webmail UI against the account's mail
// store: a message the UI reported as sent must show up in the sent folder.
package mailbox

import (
	"context"
	"errors"
	"strings"

	"github.com/gotrs-io/mailflow/internal/webmail"
)

// ErrNotFound is returned when the message never showed up in the folder.
var ErrNotFound = errors.New("message not found in mailbox")

// Account addresses one IMAP mailbox.
type Account struct {
	// Addr is host:port.
	Addr     string
	Username string
	Password string
	// Insecure dials without TLS; only useful against local test servers.
	Insecure bool
	Folder   string
}

// Result describes the message that was found.
type Result struct {
	UID              uint32
	Subject          string
	RecipientMatched bool
	// Attempts counts the searches made before the message was found.
	Attempts int
}

// SentVerifier confirms that a message reached the sent folder.
type SentVerifier interface {
	VerifySent(ctx context.Context, msg webmail.Message) (Result, error)
}

func recipients(to string) []string {
	var out []string
	for _, part := range strings.Split(to, ",") {
		if addr := strings.ToLower(strings.TrimSpace(part)); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
