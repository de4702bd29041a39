package mailbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"go.uber.org/zap"
	htmlcharset "golang.org/x/net/html/charset"

	"github.com/gotrs-io/mailflow/internal/webmail"
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// headerSection fetches the header only, without setting \Seen.
var headerSection = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}

// IMAPVerifier polls an IMAP folder until a message with the expected
// subject appears.
type IMAPVerifier struct {
	account      Account
	pollInterval time.Duration
	timeout      time.Duration
	dialTimeout  time.Duration
	logger       *zap.Logger
	newClient    func(Account) (imapClient, error)
}

// IMAPVerifierOption customizes verifier behavior.
type IMAPVerifierOption func(*IMAPVerifier)

// NewIMAPVerifier returns a verifier for account. An empty folder means
// INBOX.
func NewIMAPVerifier(account Account, opts ...IMAPVerifierOption) *IMAPVerifier {
	v := &IMAPVerifier{
		account:      account,
		pollInterval: 3 * time.Second,
		timeout:      time.Minute,
		dialTimeout:  10 * time.Second,
		logger:       zap.NewNop(),
	}
	v.newClient = v.defaultClientFactory
	for _, opt := range opts {
		opt(v)
	}
	if v.account.Folder == "" {
		v.account.Folder = "INBOX"
	}
	return v
}

// WithPollInterval sets the pause between two searches.
func WithPollInterval(d time.Duration) IMAPVerifierOption {
	return func(v *IMAPVerifier) {
		if d > 0 {
			v.pollInterval = d
		}
	}
}

// WithTimeout bounds the whole verification.
func WithTimeout(d time.Duration) IMAPVerifierOption {
	return func(v *IMAPVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithDialTimeout overrides the socket dial timeout.
func WithDialTimeout(d time.Duration) IMAPVerifierOption {
	return func(v *IMAPVerifier) {
		if d > 0 {
			v.dialTimeout = d
		}
	}
}

// WithLogger sets the logger used for polling diagnostics.
func WithLogger(logger *zap.Logger) IMAPVerifierOption {
	return func(v *IMAPVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func withClientFactory(factory func(Account) (imapClient, error)) IMAPVerifierOption {
	return func(v *IMAPVerifier) {
		v.newClient = factory
	}
}

// VerifySent searches the folder for msg.Subject until it is found or the
// timeout expires. Subjects must match exactly; the recipient check is
// reported but never fails the verification.
func (v *IMAPVerifier) VerifySent(ctx context.Context, msg webmail.Message) (Result, error) {
	var res Result
	if msg.Subject == "" {
		return res, errors.New("imap verify requires a subject")
	}
	if v.account.Username == "" || v.account.Password == "" {
		return res, errors.New("imap account missing credentials")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client, err := v.newClient(v.account)
	if err != nil {
		return res, fmt.Errorf("imap connect: %w", err)
	}
	defer v.safeClose(client)

	if err := client.Login(v.account.Username, v.account.Password).Wait(); err != nil {
		return res, fmt.Errorf("imap auth: %w", err)
	}

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()
	for {
		res.Attempts++
		found, ok, err := v.search(client, msg)
		if err != nil {
			return res, err
		}
		if ok {
			found.Attempts = res.Attempts
			if err := client.Logout().Wait(); err != nil {
				v.logger.Debug("imap logout failed", zap.Error(err))
			}
			return found, nil
		}
		v.logger.Debug("message not in mailbox yet",
			zap.String("folder", v.account.Folder),
			zap.String("subject", msg.Subject),
			zap.Int("attempt", res.Attempts))

		select {
		case <-ctx.Done():
			return res, fmt.Errorf("%w: %q in %s after %d searches", ErrNotFound, msg.Subject, v.account.Folder, res.Attempts)
		case <-ticker.C:
		}
	}
}

// search runs one select/search/fetch round. Selecting again on every round
// picks up messages that arrived since the previous one.
func (v *IMAPVerifier) search(client imapClient, msg webmail.Message) (Result, bool, error) {
	if _, err := client.Select(v.account.Folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return Result{}, false, fmt.Errorf("imap select %s: %w", v.account.Folder, err)
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: msg.Subject}},
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return Result{}, false, fmt.Errorf("imap search: %w", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return Result{}, false, nil
	}

	opts := &imap.FetchOptions{UID: true, BodySection: []*imap.FetchItemBodySection{headerSection}}
	bufs, err := client.Fetch(imap.UIDSetNum(uids...), opts).Collect()
	if err != nil {
		return Result{}, false, fmt.Errorf("imap fetch: %w", err)
	}

	// Newest first: a rerun with the same subject should match the latest copy.
	slices.SortFunc(bufs, func(a, b *imapclient.FetchMessageBuffer) int {
		return int(b.UID) - int(a.UID)
	})

	want := recipients(msg.To)
	for _, buf := range bufs {
		raw := buf.FindBodySection(headerSection)
		if raw == nil {
			continue
		}
		subject, to, err := parseHeader(raw)
		if err != nil {
			v.logger.Debug("skipping unparsable header", zap.Uint32("uid", uint32(buf.UID)), zap.Error(err))
			continue
		}
		// SEARCH HEADER is a substring match.
		if subject != msg.Subject {
			continue
		}
		return Result{
			UID:              uint32(buf.UID),
			Subject:          subject,
			RecipientMatched: len(want) > 0 && containsAll(to, want),
		}, true, nil
	}
	return Result{}, false, nil
}

func parseHeader(raw []byte) (string, []string, error) {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", nil, err
	}
	header := gomail.Header{Header: gomessage.Header{Header: h}}
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	var to []string
	if list, err := header.AddressList("To"); err == nil {
		for _, addr := range list {
			to = append(to, strings.ToLower(addr.Address))
		}
	}
	return subject, to, nil
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

func (v *IMAPVerifier) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		v.logger.Debug("imap close error", zap.Error(err))
	}
}

func (v *IMAPVerifier) defaultClientFactory(account Account) (imapClient, error) {
	if account.Addr == "" {
		return nil, errors.New("imap account missing address")
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: v.dialTimeout}}
	var client *imapclient.Client
	var err error
	if account.Insecure {
		client, err = imapclient.DialInsecure(account.Addr, opts)
	} else {
		client, err = imapclient.DialTLS(account.Addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
