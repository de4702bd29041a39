package maildata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/mailflow/internal/webmail"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := write(t, "emails.yaml", `
emails:
  - to: "${RECIPIENT_EMAIL}"
    subject: One
    body: First
invalidCredentials:
  username: nobody@example.com
`)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Emails, 1)
	assert.Equal(t, webmail.Message{To: RecipientPlaceholder, Subject: "One", Body: "First"}, f.Emails[0])
	assert.Equal(t, "nobody@example.com", f.InvalidCredentials.Username)
}

func TestLoadJSON(t *testing.T) {
	path := write(t, "config.json", `{
  "emails": [{"to": "a@example.com", "subject": "S", "body": "B"}],
  "invalidCredentials": {"username": "x@example.com", "password": "y"}
}`)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", f.Emails[0].To)
	assert.Equal(t, "y", f.InvalidCredentials.Password)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(write(t, "bad.yaml", "emails: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse")

	f, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, f.Emails)
}

func TestShippedDataFileParses(t *testing.T) {
	f, err := Load(filepath.Join("..", "..", "testdata", "emails.yaml"))
	require.NoError(t, err)
	assert.Len(t, f.Emails, 3)
}

func TestMessages(t *testing.T) {
	f := &File{Emails: []webmail.Message{
		{To: RecipientPlaceholder, Subject: "A"},
		{To: "fixed@example.com, " + RecipientPlaceholder, Subject: "B"},
	}}

	t.Run("recipient override replaces to", func(t *testing.T) {
		msgs := f.Messages("rcpt@example.com", "me@example.com")
		assert.Equal(t, "rcpt@example.com", msgs[0].To)
		assert.Equal(t, "rcpt@example.com", msgs[1].To)
	})

	t.Run("placeholder falls back", func(t *testing.T) {
		msgs := f.Messages("", "me@example.com")
		assert.Equal(t, "me@example.com", msgs[0].To)
		assert.Equal(t, "fixed@example.com, me@example.com", msgs[1].To)
	})

	t.Run("file is not modified", func(t *testing.T) {
		f.Messages("rcpt@example.com", "")
		assert.Equal(t, RecipientPlaceholder, f.Emails[0].To)
	})

	t.Run("defaults when empty", func(t *testing.T) {
		msgs := (&File{}).Messages("", "me@example.com")
		require.Len(t, msgs, 3)
		for _, m := range msgs {
			assert.Equal(t, "me@example.com", m.To)
			assert.NotEmpty(t, m.Subject)
			assert.NotEmpty(t, m.Body)
		}
	})
}

func TestInvalid(t *testing.T) {
	assert.Equal(t, DefaultInvalidUsername, (&File{}).Invalid("").Username)
	assert.NotEmpty(t, (&File{}).Invalid("").Password)

	f := &File{InvalidCredentials: webmail.Credentials{Username: "file@example.com", Password: "p"}}
	assert.Equal(t, webmail.Credentials{Username: "file@example.com", Password: "p"}, f.Invalid(""))
	assert.Equal(t, "flag@example.com", f.Invalid("flag@example.com").Username)
}

func TestTagged(t *testing.T) {
	id := uuid.NewString()
	msgs := []webmail.Message{{Subject: "Hello"}, {Subject: ""}}

	tagged := Tagged(msgs, id)

	assert.Equal(t, "Hello ["+ShortID(id)+"]", tagged[0].Subject)
	assert.Empty(t, tagged[1].Subject, "an empty subject stays empty")
	assert.Equal(t, "Hello", msgs[0].Subject)
	assert.Len(t, ShortID(id), 8)
	assert.Equal(t, msgs, Tagged(msgs, ""))
}
