package network

// Client -> server.
const (
	MsgTypeHeartbeat    = 1
	MsgTypeSubscribe    = 100
	MsgTypeJoinRoom     = 101
	MsgTypeUnsubscribe  = 102
	MsgTypeCreateRoom   = 103
	MsgTypeSelectSecret = 201
	MsgTypeDrawToken    = 202
	MsgTypeResetGame    = 203
)

// Server -> client.
const (
	MsgTypeRoomState  = 301
	MsgTypeDrawResult = 302
	MsgTypeKeepAlive  = 303
	MsgTypeError      = 304
)

// MaxPayload is the largest payload the 16-bit length field can carry.
const MaxPayload = 1<<16 - 1

// Request is the JSON payload of every client message. Fields a message
// does not use are left empty.
type Request struct {
	RoomID     string `json:"roomId,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	Token      string `json:"token,omitempty"`
}

// DrawResult answers MsgTypeDrawToken.
type DrawResult struct {
	RoomID   string `json:"roomId"`
	Token    string `json:"token"`
	Poisoned bool   `json:"poisoned"`
}

// ErrorMessage answers a rejected client message.
type ErrorMessage struct {
	MsgID   uint16 `json:"msgId"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
