package chat

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_Validate(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
		ok   bool
	}{
		{"text", TextPayload{Content: "hola"}, true},
		{"text blank", TextPayload{Content: " \n "}, false},
		{"text at limit counts runes", TextPayload{Content: strings.Repeat("é", MaxTextLength)}, true},
		{"text over limit", TextPayload{Content: strings.Repeat("a", MaxTextLength+1)}, false},
		{"text padded to limit", TextPayload{Content: "  " + strings.Repeat("a", MaxTextLength) + "  "}, true},
		{"file", FilePayload{FileURL: "u", FileName: "a.pdf", FileSizeBytes: 0}, true},
		{"file no url", FilePayload{FileName: "a.pdf"}, false},
		{"file no name", FilePayload{FileURL: "u", FileName: "  "}, false},
		{"file long name", FilePayload{FileURL: "u", FileName: strings.Repeat("n", MaxFileNameLength+1)}, false},
		{"file negative size", FilePayload{FileURL: "u", FileName: "a.pdf", FileSizeBytes: -1}, false},
		{"file at max size", FilePayload{FileURL: "u", FileName: "a.pdf", FileSizeBytes: MaxFileSizeBytes}, true},
		{"file allowed type", FilePayload{FileURL: "u", FileName: "a.png", FileType: "image/png; q=1"}, true},
		{"player", PlayerRefPayload{ReferencedPlayerID: uuid.New()}, true},
		{"player nil", PlayerRefPayload{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestFilePayload_AllowLists(t *testing.T) {
	for name, p := range map[string]FilePayload{
		"executable type": {FileURL: "u", FileName: "a.pdf", FileType: "application/x-msdownload"},
		"executable name": {FileURL: "u", FileName: "setup.exe"},
		"no extension":    {FileURL: "u", FileName: "informe", FileType: "application/pdf"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, p.validate(), ErrFileTypeNotAllowed)
		})
	}
}

func TestFill(t *testing.T) {
	var m Message
	fill(&m, TextPayload{Content: "  hi "})
	assert.Equal(t, MessageText, m.MessageType)
	require.NotNil(t, m.Content)
	assert.Equal(t, "hi", *m.Content)
	assert.Nil(t, m.FileURL)

	m = Message{}
	fill(&m, FilePayload{FileURL: " u ", FileName: " a.pdf ", FileSizeBytes: 3})
	assert.Equal(t, MessageFile, m.MessageType)
	assert.Equal(t, "u", *m.FileURL)
	assert.Equal(t, "a.pdf", *m.FileName)
	assert.Nil(t, m.FileType)
	assert.Nil(t, m.Content)

	id := uuid.New()
	m = Message{}
	fill(&m, PlayerRefPayload{ReferencedPlayerID: id})
	assert.Equal(t, MessagePlayerRef, m.MessageType)
	assert.Equal(t, id, *m.ReferencedPlayerID)
}

func TestMessage_UnreadFor(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	m := Message{SenderID: &other}
	assert.True(t, m.unreadFor(me))
	assert.False(t, m.unreadFor(other))

	system := Message{MessageType: MessageSystem}
	assert.False(t, system.unreadFor(me))
	assert.False(t, system.SentBy(me))
}
