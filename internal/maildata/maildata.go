// Package maildata loads the messages and negative-path credentials the
// scenarios use.
package maildata

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gotrs-io/mailflow/internal/webmail"
)

// RecipientPlaceholder in a message's to field is replaced with the
// configured recipient.
const RecipientPlaceholder = "${RECIPIENT_EMAIL}"

// DefaultInvalidUsername is used when the data file names no invalid account.
const DefaultInvalidUsername = "invalid.user@example.com"

const defaultInvalidPassword = "not-the-password"

// File is the data file. JSON files parse as well, since YAML is a superset.
type File struct {
	Emails             []webmail.Message   `yaml:"emails"`
	InvalidCredentials webmail.Credentials `yaml:"invalidCredentials"`
}

// Load reads path. An empty path yields an empty File.
func Load(path string) (*File, error) {
	f := &File{}
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
	}
	return f, nil
}

// Messages returns the messages to send. A non-empty recipient replaces every
// message's to field; otherwise the placeholder is replaced with fallback.
// Without messages in the file, three default messages go to recipient, or
// to fallback when no recipient is set.
func (f *File) Messages(recipient, fallback string) []webmail.Message {
	to := recipient
	if to == "" {
		to = fallback
	}
	if len(f.Emails) == 0 {
		return []webmail.Message{
			{To: to, Subject: "Playwright Test A", Body: "Test body A"},
			{To: to, Subject: "Playwright Test B", Body: "Test body B"},
			{To: to, Subject: "Playwright Test C", Body: "Test body C"},
		}
	}

	out := make([]webmail.Message, 0, len(f.Emails))
	for _, m := range f.Emails {
		if recipient != "" {
			m.To = recipient
		} else {
			m.To = strings.ReplaceAll(m.To, RecipientPlaceholder, fallback)
		}
		out = append(out, m)
	}
	return out
}

// Invalid returns the credentials for the rejected sign-in scenario.
// username, when set, overrides the data file.
func (f *File) Invalid(username string) webmail.Credentials {
	c := f.InvalidCredentials
	if username != "" {
		c.Username = username
	}
	if c.Username == "" {
		c.Username = DefaultInvalidUsername
	}
	if c.Password == "" {
		c.Password = defaultInvalidPassword
	}
	return c
}

// Tagged returns copies of msgs whose subjects carry a short form of runID,
// so each run's messages can be told apart in the sent folder.
func Tagged(msgs []webmail.Message, runID string) []webmail.Message {
	tag := ShortID(runID)
	out := make([]webmail.Message, len(msgs))
	for i, m := range msgs {
		if tag != "" && m.Subject != "" {
			m.Subject = fmt.Sprintf("%s [%s]", m.Subject, tag)
		}
		out[i] = m
	}
	return out
}

// ShortID returns the first eight characters of id.
func ShortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
