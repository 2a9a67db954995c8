package chat_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

func TestService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("text is trimmed and attributed", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		m := f.text(t, f.scout, c.ID, "  Hola, ¿tienen sub-17?  ")
		require.NotNil(t, m.Content)
		assert.Equal(t, "Hola, ¿tienen sub-17?", *m.Content)
		assert.Equal(t, chat.MessageText, m.MessageType)
		assert.True(t, m.SentBy(f.scout.ID))
		assert.Nil(t, m.ReadAt)
		assert.Equal(t, f.clock.Now(), m.CreatedAt)
	})

	t.Run("text length bounds", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		for _, content := range []string{"", "   \n\t", strings.Repeat("ñ", chat.MaxTextLength+1)} {
			_, err := f.svc.Send(ctx, f.scout, c.ID, chat.TextPayload{Content: content})
			assert.ErrorIs(t, err, chat.ErrInvalidInput)
		}
		_, err := f.svc.Send(ctx, f.scout, c.ID, chat.TextPayload{Content: strings.Repeat("ñ", chat.MaxTextLength)})
		assert.NoError(t, err)
	})

	t.Run("nil payload", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		_, err := f.svc.Send(ctx, f.scout, c.ID, nil)
		assert.ErrorIs(t, err, chat.ErrInvalidInput)
	})

	t.Run("only participants may send", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		outsider := f.newScout("Outsider")
		_, err := f.svc.Send(ctx, outsider, c.ID, chat.TextPayload{Content: "hi"})
		assert.ErrorIs(t, err, chat.ErrUnauthorized)

		otherClub := uuid.New()
		f.store.AddClub(otherClub, "Other")
		_, err = f.svc.Send(ctx, f.adminOf(otherClub, "Stranger"), c.ID, chat.TextPayload{Content: "hi"})
		assert.ErrorIs(t, err, chat.ErrUnauthorized)

		_, err = f.svc.Send(ctx, f.scout, uuid.New(), chat.TextPayload{Content: "hi"})
		assert.ErrorIs(t, err, chat.ErrNotFound)
	})

	t.Run("player reference must exist", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		_, err := f.svc.Send(ctx, f.scout, c.ID, chat.PlayerRefPayload{})
		assert.ErrorIs(t, err, chat.ErrInvalidInput)
		_, err = f.svc.Send(ctx, f.scout, c.ID, chat.PlayerRefPayload{ReferencedPlayerID: uuid.New()})
		assert.ErrorIs(t, err, chat.ErrInvalidInput)

		player := chat.PlayerSummary{ID: uuid.New(), Name: "Mateo Ríos"}
		f.store.AddPlayer(player, true)
		m, err := f.svc.Send(ctx, f.admin, c.ID, chat.PlayerRefPayload{ReferencedPlayerID: player.ID})
		require.NoError(t, err)
		assert.Equal(t, chat.MessagePlayerRef, m.MessageType)
		require.NotNil(t, m.ReferencedPlayerID)
		assert.Equal(t, player.ID, *m.ReferencedPlayerID)
	})

	t.Run("file payload fields", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		_, err := f.svc.Send(ctx, f.scout, c.ID, chat.FilePayload{FileName: "a.pdf"})
		assert.ErrorIs(t, err, chat.ErrInvalidInput)
		_, err = f.svc.Send(ctx, f.scout, c.ID, chat.FilePayload{FileURL: "https://x/a.pdf", FileName: strings.Repeat("a", 256)})
		assert.ErrorIs(t, err, chat.ErrInvalidInput)
		_, err = f.svc.Send(ctx, f.scout, c.ID, chat.FilePayload{FileURL: "https://x/a.pdf", FileName: "a.pdf", FileSizeBytes: chat.MaxFileSizeBytes + 1})
		assert.ErrorIs(t, err, chat.ErrInvalidInput)
		_, err = f.svc.Send(ctx, f.scout, c.ID, chat.FilePayload{
			FileURL: "https://x/setup.pdf", FileName: "setup.pdf", FileType: "application/x-msdownload", FileSizeBytes: 10,
		})
		assert.ErrorIs(t, err, chat.ErrFileTypeNotAllowed)
		_, err = f.svc.Send(ctx, f.scout, c.ID, chat.FilePayload{FileURL: "https://x/setup.exe", FileName: "setup.exe", FileSizeBytes: 10})
		assert.ErrorIs(t, err, chat.ErrFileTypeNotAllowed)

		m, err := f.svc.Send(ctx, f.scout, c.ID, chat.FilePayload{
			FileURL: "https://x/a.pdf", FileName: "informe.pdf", FileType: "application/pdf", FileSizeBytes: 2048,
		})
		require.NoError(t, err)
		assert.Equal(t, chat.MessageFile, m.MessageType)
		assert.Equal(t, "informe.pdf", *m.FileName)
		assert.Equal(t, int64(2048), *m.FileSizeBytes)
		assert.Nil(t, m.Content)
	})

	t.Run("thirty messages per hour", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		for i := 0; i < 30; i++ {
			f.text(t, f.scout, c.ID, "ping")
		}
		_, err := f.svc.Send(ctx, f.scout, c.ID, chat.TextPayload{Content: "one more"})
		require.ErrorIs(t, err, chat.ErrRateLimited)
		assert.Equal(t, chat.QuotaMessagesPerHour, chat.QuotaOf(err))

		// The other party has its own quota.
		f.text(t, f.admin, c.ID, "pong")

		f.clock.Advance(time.Hour)
		f.text(t, f.scout, c.ID, "back again")
	})

	t.Run("five file messages per day", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		file := chat.FilePayload{FileURL: "https://x/a.png", FileName: "a.png", FileSizeBytes: 10}
		for i := 0; i < 5; i++ {
			f.clock.Advance(time.Second)
			_, err := f.svc.Send(ctx, f.scout, c.ID, file)
			require.NoError(t, err)
		}
		_, err := f.svc.Send(ctx, f.scout, c.ID, file)
		require.ErrorIs(t, err, chat.ErrRateLimited)
		assert.Equal(t, chat.QuotaUploadsPerDay, chat.QuotaOf(err))

		// Text still goes through.
		f.text(t, f.scout, c.ID, "see attached")
	})

	t.Run("blocked conversation stops both sides", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		_, err := f.svc.SetBlock(ctx, f.admin, c.ID, true)
		require.NoError(t, err)

		_, err = f.svc.Send(ctx, f.scout, c.ID, chat.TextPayload{Content: "hello?"})
		assert.ErrorIs(t, err, chat.ErrBlocked)
		_, err = f.svc.Send(ctx, f.admin, c.ID, chat.TextPayload{Content: "hello"})
		assert.ErrorIs(t, err, chat.ErrBlocked)

		_, err = f.svc.SetBlock(ctx, f.admin, c.ID, false)
		require.NoError(t, err)
		f.text(t, f.scout, c.ID, "thanks")
	})

	t.Run("side effect failures do not fail the send", func(t *testing.T) {
		notes := &notifications{err: errBoom}
		f := newFixture(t, chat.WithNotifier(notes))
		c := f.open(t)
		f.pub.err = errBoom
		m := f.text(t, f.admin, c.ID, "welcome")
		require.Len(t, notes.sent, 1)
		assert.Equal(t, m.ID, notes.sent[0].ID)
	})

	t.Run("admin message resets the scout badge", func(t *testing.T) {
		cache := newMapCache()
		f := newFixture(t, chat.WithUnreadCache(cache))
		c := f.open(t)
		n, err := f.svc.UnreadCount(ctx, f.scout)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.True(t, cache.has(f.scout))

		f.text(t, f.admin, c.ID, "hola")
		assert.False(t, cache.has(f.scout))
		n, err = f.svc.UnreadCount(ctx, f.scout)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestService_SendAttachment(t *testing.T) {
	ctx := context.Background()
	pdf := chat.Upload{Data: bytes.Repeat([]byte("x"), 1024), MIMEType: "application/pdf", FileName: "Informe Técnico.PDF"}

	t.Run("stores then sends", func(t *testing.T) {
		objects := newObjects()
		f := newFixture(t, chat.WithObjectStore(objects))
		c := f.open(t)

		m, err := f.svc.SendAttachment(ctx, f.scout, c.ID, pdf)
		require.NoError(t, err)
		assert.Equal(t, chat.MessageFile, m.MessageType)
		assert.Equal(t, "Informe Técnico.PDF", *m.FileName)
		assert.Equal(t, "application/pdf", *m.FileType)
		assert.Equal(t, int64(1024), *m.FileSizeBytes)
		assert.True(t, strings.HasPrefix(*m.FileURL, "https://files.test/conversations/"+c.ID.String()+"/"))
		assert.True(t, strings.Contains(*m.FileURL, ".pdf?"))
		assert.Equal(t, 1, objects.count())
	})

	t.Run("rejected files are never stored", func(t *testing.T) {
		objects := newObjects()
		f := newFixture(t, chat.WithObjectStore(objects))
		c := f.open(t)

		tooBig := chat.Upload{Data: make([]byte, chat.MaxFileSizeBytes+1), MIMEType: "image/png", FileName: "a.png"}
		_, err := f.svc.SendAttachment(ctx, f.scout, c.ID, tooBig)
		assert.ErrorIs(t, err, chat.ErrFileTooLarge)

		zip := chat.Upload{Data: []byte("PK"), MIMEType: "application/zip", FileName: "a.zip"}
		_, err = f.svc.SendAttachment(ctx, f.scout, c.ID, zip)
		assert.ErrorIs(t, err, chat.ErrFileTypeNotAllowed)

		disguised := chat.Upload{Data: []byte("MZ"), MIMEType: "image/png", FileName: "setup.exe"}
		_, err = f.svc.SendAttachment(ctx, f.scout, c.ID, disguised)
		assert.ErrorIs(t, err, chat.ErrFileTypeNotAllowed)

		assert.Zero(t, objects.count())
	})

	t.Run("storage failure leaves no message", func(t *testing.T) {
		for name, objects := range map[string]*fakeObjects{
			"put":  {puts: map[string][]byte{}, putErr: errBoom},
			"sign": {puts: map[string][]byte{}, signErr: errBoom},
		} {
			t.Run(name, func(t *testing.T) {
				f := newFixture(t, chat.WithObjectStore(objects))
				c := f.open(t)
				_, err := f.svc.SendAttachment(ctx, f.scout, c.ID, pdf)
				assert.ErrorIs(t, err, chat.ErrStorageUnavailable)

				page, err := f.svc.ListMessages(ctx, f.scout, c.ID, nil, 0)
				require.NoError(t, err)
				assert.Len(t, page.Messages, 1)
			})
		}
	})

	t.Run("upload timeout", func(t *testing.T) {
		objects := newObjects()
		objects.hang = true
		f := newFixture(t, chat.WithObjectStore(objects), chat.WithUploadTimeout(20*time.Millisecond))
		c := f.open(t)
		_, err := f.svc.SendAttachment(ctx, f.scout, c.ID, pdf)
		assert.ErrorIs(t, err, chat.ErrStorageUnavailable)
	})

	t.Run("no object store configured", func(t *testing.T) {
		f := newFixture(t)
		c := f.open(t)
		_, err := f.svc.SendAttachment(ctx, f.scout, c.ID, pdf)
		assert.ErrorIs(t, err, chat.ErrStorageUnavailable)
	})

	t.Run("quota is checked before upload", func(t *testing.T) {
		objects := newObjects()
		f := newFixture(t, chat.WithObjectStore(objects), chat.WithQuotas(map[chat.QuotaKind]chat.Quota{
			chat.QuotaUploadsPerDay: {Limit: 1, Window: 24 * time.Hour},
		}))
		c := f.open(t)
		_, err := f.svc.SendAttachment(ctx, f.scout, c.ID, pdf)
		require.NoError(t, err)
		_, err = f.svc.SendAttachment(ctx, f.scout, c.ID, pdf)
		assert.ErrorIs(t, err, chat.ErrRateLimited)
		assert.Equal(t, 1, objects.count())
	})

	t.Run("blocked", func(t *testing.T) {
		objects := newObjects()
		f := newFixture(t, chat.WithObjectStore(objects))
		c := f.open(t)
		_, err := f.svc.SetBlock(ctx, f.admin, c.ID, true)
		require.NoError(t, err)
		_, err = f.svc.SendAttachment(ctx, f.admin, c.ID, pdf)
		assert.ErrorIs(t, err, chat.ErrBlocked)
		assert.Zero(t, objects.count())
	})
}
