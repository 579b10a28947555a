package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"pulse/internal/core/domain"
	"pulse/internal/mocks"
	"pulse/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMessageService_Send_MembersReceiveMessage(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	alice, aliceConn := h.connect("alice", "a1")
	_, bobConn := h.connect("bob", "b1")

	// When alice sends "hi" to general
	h.emit(alice, aliceConn, domain.EventMessageSend, map[string]any{
		"roomId": "general", "content": "hi", "kind": "text", "clientMsgId": "tmp-1",
	})

	// Then the store persisted exactly one message
	req.Equal(1, h.store.Calls("PersistMessage"))
	req.Equal(1, h.tx.Count)
	req.Equal(domain.MessageID("m-1"), h.store.LastMessage("general"))
	req.Equal(1, h.store.Unread("general", "bob"))
	req.Equal(0, h.store.Unread("general", "alice"))

	// And bob received it with the persisted id, timestamp and sender profile
	received := bobConn.Events(domain.EventMessageReceived)
	req.Len(received, 1)
	msg := mocks.Decode[domain.ChatMessage](received[0])
	req.Equal(domain.MessageID("m-1"), msg.MessageID)
	req.Equal("hi", msg.Content)
	req.Equal(domain.KindText, msg.Kind)
	req.False(msg.Timestamp.IsZero())
	req.Equal("alice", msg.Sender.Username)
	req.Equal("https://cdn.example/alice.png", msg.Sender.Avatar)

	// And alice's own connection got an ack instead of an echo
	req.Zero(aliceConn.Count(domain.EventMessageReceived))
	acks := aliceConn.Events(domain.EventMessageSent)
	req.Len(acks, 1)
	ack := mocks.Decode[domain.AckMessage](acks[0])
	req.Equal("tmp-1", ack.ClientMsgID)
	req.Equal(msg.MessageID, ack.MessageID)
	req.Equal(msg.Timestamp, ack.Timestamp)
}

func TestMessageService_Send_OtherDevicesOfSenderReceive(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	phone, phoneConn := h.connect("alice", "a-phone")
	_, laptopConn := h.connect("alice", "a-laptop")

	h.send(phone, phoneConn, "general", "from my phone")

	req.Equal(1, laptopConn.Count(domain.EventMessageReceived))
	req.Equal(1, phoneConn.Count(domain.EventMessageSent))
	req.Zero(phoneConn.Count(domain.EventMessageReceived))
}

func TestMessageService_Send_NonMemberAccessDenied(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("bob", "general")
	h.member("carol")
	_, bobConn := h.connect("bob", "b1")
	carol, carolConn := h.connect("carol", "c1")
	bobConn.Reset()

	// When carol, who is not a member, sends to general
	h.send(carol, carolConn, "general", "let me in")

	// Then she gets access_denied and nothing is stored or broadcast
	e := lastError(t, carolConn)
	req.Equal(domain.CodeAccessDenied, e.Code)
	req.Equal(domain.EventMessageSend, e.Event)
	req.Zero(h.store.Calls("PersistMessage"))
	req.Zero(h.tx.Count)
	req.Empty(bobConn.Frames())
}

func TestMessageService_Send_NotJoinedAfterLeave(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	alice, aliceConn := h.connect("alice", "a1")

	h.emit(alice, aliceConn, domain.EventChatLeave, domain.RoomRequest{RoomID: "general"})
	h.send(alice, aliceConn, "general", "hello?")

	req.Equal(domain.CodeAccessDenied, lastError(t, aliceConn).Code)
	req.Zero(h.store.Calls("PersistMessage"))
}

func TestMessageService_Send_Validation(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"empty content", map[string]any{"roomId": "general", "content": "   ", "kind": "text"}},
		{"unknown kind", map[string]any{"roomId": "general", "content": "hi", "kind": "sticker"}},
		{"too long", map[string]any{"roomId": "general", "content": strings.Repeat("é", 11), "kind": "text"}},
		{"bad attachment url", map[string]any{"roomId": "general", "kind": "image", "attachment": map[string]any{"url": "not a url"}}},
		{"client msg id too long", map[string]any{"roomId": "general", "content": "hi", "clientMsgId": strings.Repeat("x", 129)}},
		{"malformed reply to", map[string]any{"roomId": "general", "content": "hi", "replyTo": "not-a-uuid"}},
		{"missing room", map[string]any{"content": "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t, func(o *harnessOpts) { o.maxContent = 10 })
			h.member("alice", "general")
			alice, aliceConn := h.connect("alice", "a1")

			h.emit(alice, aliceConn, domain.EventMessageSend, tt.data)

			req.Equal(domain.CodeValidation, lastError(t, aliceConn).Code)
			req.Zero(h.store.Calls("PersistMessage"))
		})
	}
}

func TestMessageService_Send_DefaultsAndAttachments(t *testing.T) {
	const replyID = "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	alice, aliceConn := h.connect("alice", "a1")
	_, bobConn := h.connect("bob", "b1")

	// No kind defaults to text
	h.emit(alice, aliceConn, domain.EventMessageSend, map[string]any{"roomId": "general", "content": "plain"})
	// Attachment without content is accepted
	h.emit(alice, aliceConn, domain.EventMessageSend, map[string]any{
		"roomId": "general", "kind": "image", "replyTo": replyID,
		"attachment": map[string]any{"url": "https://cdn.example/cat.png", "name": "cat.png", "size": 1024},
	})

	req.Zero(aliceConn.Count(domain.EventError))
	got := bobConn.Events(domain.EventMessageReceived)
	req.Len(got, 2)
	req.Equal(domain.KindText, mocks.Decode[domain.ChatMessage](got[0]).Kind)
	img := mocks.Decode[domain.ChatMessage](got[1])
	req.Equal(domain.KindImage, img.Kind)
	req.NotNil(img.Attachment)
	req.Equal("cat.png", img.Attachment.Name)
	req.NotNil(img.ReplyTo)
	req.Equal(domain.MessageID(replyID), *img.ReplyTo)
}

func TestMessageService_Send_PersistenceFailure(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		inject func(*mocks.Store)
	}{
		{"persist message", "disk full", func(s *mocks.Store) { s.ErrPersist = errors.New("disk full") }},
		{"update last message", "timeout", func(s *mocks.Store) { s.ErrUpdateLast = errors.New("timeout") }},
		{"increment unread", "deadlock", func(s *mocks.Store) { s.ErrIncrement = errors.New("deadlock") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t)
			h.member("alice", "general")
			h.member("bob", "general")
			alice, aliceConn := h.connect("alice", "a1")
			_, bobConn := h.connect("bob", "b1")
			tt.inject(h.store)

			h.send(alice, aliceConn, "general", "hi")

			e := lastError(t, aliceConn)
			req.Equal(domain.CodePersistence, e.Code)
			// Store detail stays in the logs
			req.Equal("storage unavailable, please retry", e.Message)
			req.NotContains(e.Message, tt.detail)
			req.Zero(bobConn.Count(domain.EventMessageReceived))
			req.Zero(aliceConn.Count(domain.EventMessageSent))
			// Membership is untouched by the failed send
			req.True(h.rooms.IsMember("general", "a1"))
		})
	}
}

func TestMessageService_Send_PerSenderOrdering(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	h.member("dave", "general")
	alice, aliceConn := h.connect("alice", "a1")
	_, bobConn := h.connect("bob", "b1")
	_, daveConn := h.connect("dave", "d1")

	for i := 0; i < 20; i++ {
		h.send(alice, aliceConn, "general", fmt.Sprintf("msg-%02d", i))
	}

	for _, c := range []*mocks.Client{bobConn, daveConn} {
		got := c.Events(domain.EventMessageReceived)
		req.Len(got, 20)
		for i, env := range got {
			req.Equal(fmt.Sprintf("msg-%02d", i), mocks.Decode[domain.ChatMessage](env).Content)
		}
	}
}

func TestMessageService_Send_DeliveryFailureIsIsolated(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	h.member("dave", "general")
	alice, aliceConn := h.connect("alice", "a1")
	_, bobConn := h.connect("bob", "b1")
	_, daveConn := h.connect("dave", "d1")

	// Given bob's outbound buffer is full
	bobConn.Fail = true

	h.send(alice, aliceConn, "general", "hi all")

	// Then dave still receives the message and alice sees no error
	req.Equal(1, daveConn.Count(domain.EventMessageReceived))
	req.Zero(aliceConn.Count(domain.EventError))
	req.Equal(1, aliceConn.Count(domain.EventMessageSent))
	req.Equal(1.0, testutil.ToFloat64(h.metrics.DeliveriesTotal.WithLabelValues(domain.EventMessageReceived, metrics.OutcomeDropped)))
	req.Equal(1.0, testutil.ToFloat64(h.metrics.DeliveriesTotal.WithLabelValues(domain.EventMessageReceived, metrics.OutcomeOK)))
}

func TestMessageService_Send_StopsSenderTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	alice, aliceConn := h.connect("alice", "a1")
	_, bobConn := h.connect("bob", "b1")

	h.emit(alice, aliceConn, domain.EventTypingStart, domain.RoomRequest{RoomID: "general"})
	req.Equal(1, bobConn.Count(domain.EventTypingStarted))

	h.send(alice, aliceConn, "general", "done typing")

	req.Equal(1, bobConn.Count(domain.EventTypingStopped))
	req.Zero(h.typing.Active())

	// A later explicit stop does not produce a duplicate
	h.emit(alice, aliceConn, domain.EventTypingStop, domain.RoomRequest{RoomID: "general"})
	req.Equal(1, bobConn.Count(domain.EventTypingStopped))
}

func TestMessageService_React_Toggle(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	h.store.PutMessage("m-seed", "general", "bob")
	alice, aliceConn := h.connect("alice", "a1")
	_, bobConn := h.connect("bob", "b1")

	// When alice reacts
	h.emit(alice, aliceConn, domain.EventMessageReact, domain.ReactRequest{MessageID: "m-seed", Emoji: "👍"})

	// Then the whole room, alice included, sees the reaction list
	for _, c := range []*mocks.Client{aliceConn, bobConn} {
		got := c.Events(domain.EventMessageReaction)
		req.Len(got, 1)
		ev := mocks.Decode[domain.ReactionEvent](got[0])
		req.Equal(domain.MessageID("m-seed"), ev.MessageID)
		req.Len(ev.Reactions, 1)
		req.Equal(domain.PrincipalID("alice"), ev.Reactions[0].PrincipalID)
	}

	// When alice reacts with the same emoji again, it is removed
	h.emit(alice, aliceConn, domain.EventMessageReact, domain.ReactRequest{MessageID: "m-seed", Emoji: "👍"})
	got := bobConn.Events(domain.EventMessageReaction)
	req.Len(got, 2)
	req.Empty(mocks.Decode[domain.ReactionEvent](got[1]).Reactions)
	req.JSONEq(`{"messageId":"m-seed","reactions":[]}`, string(got[1].Data))
}

func TestMessageService_React_Errors(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.store.PutMessage("m-secret", "secret", "bob")
	h.store.PutMessage("m-general", "general", "alice")
	alice, aliceConn := h.connect("alice", "a1")

	h.emit(alice, aliceConn, domain.EventMessageReact, domain.ReactRequest{MessageID: "m-secret", Emoji: "👍"})
	req.Equal(domain.CodeAccessDenied, lastError(t, aliceConn).Code)

	h.emit(alice, aliceConn, domain.EventMessageReact, domain.ReactRequest{MessageID: "m-missing", Emoji: "👍"})
	req.Equal(domain.CodeValidation, lastError(t, aliceConn).Code)

	h.emit(alice, aliceConn, domain.EventMessageReact, domain.ReactRequest{MessageID: "m-general"})
	req.Equal(domain.CodeValidation, lastError(t, aliceConn).Code)

	h.store.ErrReaction = errors.New("conn reset")
	h.emit(alice, aliceConn, domain.EventMessageReact, domain.ReactRequest{MessageID: "m-general", Emoji: "🔥"})
	req.Equal(domain.CodePersistence, lastError(t, aliceConn).Code)
	req.Zero(aliceConn.Count(domain.EventMessageReaction))
	req.Equal(1, h.store.Calls("AddReaction"))
}

func TestMessageService_MarkRead_BroadcastsBeforePersisting(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	h.store.PutMessage("m-1", "general", "alice")
	h.store.MarkReadDelay = 50 * time.Millisecond
	_, aliceConn := h.connect("alice", "a1")
	bob, bobConn := h.connect("bob", "b1")

	// When bob reads alice's message
	h.emit(bob, bobConn, domain.EventMessageRead, domain.ReadRequest{MessageID: "m-1"})

	// Then alice sees the receipt while the durable write is still in flight
	got := aliceConn.Events(domain.EventMessageReadNotice)
	req.Len(got, 1)
	ev := mocks.Decode[domain.ReadEvent](got[0])
	req.Equal(domain.PrincipalID("bob"), ev.ReaderID)
	req.Empty(h.store.ReadBy("m-1"))
	req.Zero(bobConn.Count(domain.EventMessageReadNotice))

	// And the write lands once pending work is drained
	h.messages.Wait()
	req.Equal([]domain.PrincipalID{"bob"}, h.store.ReadBy("m-1"))
}

func TestMessageService_MarkRead_PersistFailureIsNotSurfaced(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.member("alice", "general")
	h.member("bob", "general")
	h.store.PutMessage("m-1", "general", "alice")
	h.store.ErrMarkRead = errors.New("replica lag")
	_, aliceConn := h.connect("alice", "a1")
	bob, bobConn := h.connect("bob", "b1")

	h.emit(bob, bobConn, domain.EventMessageRead, domain.ReadRequest{MessageID: "m-1"})
	h.messages.Wait()

	req.Equal(1, aliceConn.Count(domain.EventMessageReadNotice))
	req.Zero(bobConn.Count(domain.EventError))
}
