package network

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(MsgTypeDrawToken, []byte(`{"token":"#FF0000"}`))
	require.NoError(t, err)
	assert.Len(t, frame, 4+19)

	p, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeDrawToken), p.MsgID)
	assert.Equal(t, uint16(19), p.Length)
	assert.Equal(t, `{"token":"#FF0000"}`, string(p.Data))
}

func TestDecode_Short(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	assert.ErrorIs(t, err, io.ErrShortBuffer)

	// header claims 10 bytes, only 2 follow
	_, err = Decode([]byte{0, 1, 0, 10, 'a', 'b'})
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
	p, err := Decode([]byte{0, 1, 0, 1, 'x', 'y'})
	require.NoError(t, err)
	assert.Equal(t, "x", string(p.Data))
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(MsgTypeRoomState, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestWSConnection_Echo(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConnection(ws)
		defer conn.Close()
		conn.SetHeartbeat(time.Second)
		for {
			p, err := conn.ReadPacket()
			if err != nil {
				return
			}
			if err := conn.Send(p.MsgID+200, p.Data); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	client := NewWSConnection(ws)
	defer client.Close()

	require.NoError(t, client.Send(MsgTypeJoinRoom, []byte("hello")))
	p, err := client.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeJoinRoom+200), p.MsgID)
	assert.Equal(t, "hello", string(p.Data))
	assert.NotNil(t, client.RemoteAddr())
}
