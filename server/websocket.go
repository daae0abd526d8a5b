package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/poisonheart/logger"
	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/network"
	"github.com/wfunc/poisonheart/room"
	"github.com/wfunc/poisonheart/session"
)

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(s.keepAlive)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineSessions()

	sess.SetKeepAlive(s.timers.AddTimer(s.keepAlive, s.keepAlive, func() {
		if err := sess.Send(network.MsgTypeKeepAlive, nil); err != nil {
			logger.Log.Debugw("keep-alive failed", "session", sess.ID(), "error", err)
		}
	}))

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.ID())
		s.timers.RemoveTimer(sess.KeepAlive())
		if roomID := sess.RoomID(); roomID != "" {
			s.notifier.Unsubscribe(roomID, sess.ID())
		}
		s.sessionManager.Remove(sess.ID())
		s.monitor.DecOnlineSessions()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	sess.Touch()
	if packet.MsgID == network.MsgTypeHeartbeat {
		return
	}

	var req network.Request
	if len(packet.Data) > 0 {
		if err := json.Unmarshal(packet.Data, &req); err != nil {
			s.sendError(sess, packet.MsgID, errInvalidJSON)
			return
		}
	}
	requestedRoom := req.RoomID
	if req.RoomID == "" {
		req.RoomID = sess.RoomID()
	}
	if req.PlayerID == "" {
		req.PlayerID = sess.PlayerID()
	}

	var err error
	switch packet.MsgID {
	case network.MsgTypeSubscribe:
		err = s.follow(sess, req.RoomID, req.PlayerID)
	case network.MsgTypeUnsubscribe:
		s.unfollow(sess)
	case network.MsgTypeCreateRoom:
		req.RoomID = requestedRoom
		err = s.handleCreateRoom(sess, &req)
	case network.MsgTypeJoinRoom:
		err = s.handleJoinRoom(sess, &req)
	case network.MsgTypeSelectSecret:
		_, err = s.roomManager.SelectSecret(req.RoomID, req.PlayerID, req.Token)
	case network.MsgTypeDrawToken:
		err = s.handleDrawToken(sess, &req)
	case network.MsgTypeResetGame:
		_, err = s.roomManager.ResetGame(req.RoomID)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return
	}
	if err != nil {
		s.sendError(sess, packet.MsgID, err)
	}
}

func (s *GameServer) handleCreateRoom(sess *session.Session, req *network.Request) error {
	if req.PlayerID == "" {
		return missing("playerId")
	}

	var (
		snap models.Room
		err  error
	)
	if req.RoomID == "" {
		snap, err = s.roomManager.CreateRoom(req.PlayerName, req.PlayerID)
	} else {
		snap, err = s.roomManager.CreateRoomWithID(req.RoomID, req.PlayerName, req.PlayerID)
	}
	if err != nil {
		return err
	}
	s.refreshGauges()

	logger.Log.Infof("Session %s created room %s", sess.ID(), snap.ID)
	return s.follow(sess, snap.ID, req.PlayerID)
}

func (s *GameServer) handleJoinRoom(sess *session.Session, req *network.Request) error {
	if req.PlayerID == "" {
		return missing("playerId")
	}
	if _, err := s.roomManager.JoinRoom(req.RoomID, req.PlayerName, req.PlayerID); err != nil {
		return err
	}
	logger.Log.Infof("Session %s joined room %s", sess.ID(), req.RoomID)
	return s.follow(sess, req.RoomID, req.PlayerID)
}

func (s *GameServer) handleDrawToken(sess *session.Session, req *network.Request) error {
	_, poisoned, err := s.roomManager.DrawToken(req.RoomID, req.PlayerID, req.Token)
	if err != nil {
		return err
	}
	return sess.SendJSON(network.MsgTypeDrawResult, network.DrawResult{
		RoomID:   req.RoomID,
		Token:    req.Token,
		Poisoned: poisoned,
	})
}

// follow points the session at roomID. The current snapshot is queued
// ahead of any later change.
func (s *GameServer) follow(sess *session.Session, roomID, playerID string) error {
	if roomID == "" {
		return missing("roomId")
	}
	if prev := sess.RoomID(); prev != "" && prev != roomID {
		s.notifier.Unsubscribe(prev, sess.ID())
	}

	ok := s.roomManager.Observe(roomID, func(initial models.Room) {
		s.notifier.SubscribeWith(roomID, sess, initial)
	})
	if !ok {
		sess.Bind("", "")
		return &room.Error{Op: "subscribe", RoomID: roomID, Err: room.ErrRoomNotFound}
	}
	sess.Bind(roomID, playerID)
	return nil
}

func (s *GameServer) unfollow(sess *session.Session) {
	if prev := sess.Bind("", ""); prev != "" {
		s.notifier.Unsubscribe(prev, sess.ID())
	}
}

func (s *GameServer) sendError(sess *session.Session, msgID uint16, err error) {
	msg := network.ErrorMessage{MsgID: msgID, Code: statusFor(err), Message: err.Error()}
	if sendErr := sess.SendJSON(network.MsgTypeError, msg); sendErr != nil {
		logger.Log.Debugw("failed to send error", "session", sess.ID(), "error", sendErr)
	}
}
