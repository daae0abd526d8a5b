package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/room"
	"github.com/wfunc/poisonheart/services"
)

// RequestObserver records one handled operation.
type RequestObserver interface {
	ObserveRequest(action, outcome string, duration time.Duration)
}

// GameService is the struct that exposes RPC methods. Every method follows
// the net/rpc signature: exported method, exported arguments, pointer reply,
// error result.
type GameService struct {
	rooms    *room.Manager
	recorder *services.ResultRecorder
	observer RequestObserver
}

// NewGameService creates a new GameService. recorder and observer may be nil.
func NewGameService(rooms *room.Manager, recorder *services.ResultRecorder, observer RequestObserver) *GameService {
	return &GameService{rooms: rooms, recorder: recorder, observer: observer}
}

type CreateRoomArgs struct {
	RoomID     string // ignored by CreateRoom
	PlayerName string
	PlayerID   string
}

type JoinRoomArgs struct {
	RoomID     string
	PlayerName string
	PlayerID   string
}

type GetGameArgs struct {
	RoomID string
}

type SelectSecretArgs struct {
	RoomID   string
	PlayerID string
	Token    string
}

type DrawTokenArgs struct {
	RoomID   string
	PlayerID string
	Token    string
}

type ResetGameArgs struct {
	RoomID string
}

// ListRoomsArgs filters room ids by prefix; an empty prefix lists all.
type ListRoomsArgs struct {
	Prefix string
}

type HistoryArgs struct {
	RoomID string
	Limit  int
}

type RoomReply struct {
	Room models.Room
}

type GetGameReply struct {
	Room  models.Room
	Found bool
}

type DrawTokenReply struct {
	Room     models.Room
	Poisoned bool
}

type ListRoomsReply struct {
	Rooms []string
}

type HistoryReply struct {
	Records []models.GameRecord
}

func (gs *GameService) CreateRoom(args *CreateRoomArgs, reply *RoomReply) (err error) {
	defer gs.observe("create-room", time.Now(), &err)
	reply.Room, err = gs.rooms.CreateRoom(args.PlayerName, args.PlayerID)
	return err
}

func (gs *GameService) CreateRoomWithID(args *CreateRoomArgs, reply *RoomReply) (err error) {
	defer gs.observe("create-room-with-id", time.Now(), &err)
	reply.Room, err = gs.rooms.CreateRoomWithID(args.RoomID, args.PlayerName, args.PlayerID)
	return err
}

func (gs *GameService) JoinRoom(args *JoinRoomArgs, reply *RoomReply) (err error) {
	defer gs.observe("join-room", time.Now(), &err)
	reply.Room, err = gs.rooms.JoinRoom(args.RoomID, args.PlayerName, args.PlayerID)
	return err
}

// GetGame never fails; Found reports whether the room exists.
func (gs *GameService) GetGame(args *GetGameArgs, reply *GetGameReply) (err error) {
	defer gs.observe("get-game", time.Now(), &err)
	reply.Room, reply.Found = gs.rooms.GetRoom(args.RoomID)
	return nil
}

func (gs *GameService) SelectSecret(args *SelectSecretArgs, reply *RoomReply) (err error) {
	defer gs.observe("select-secret", time.Now(), &err)
	reply.Room, err = gs.rooms.SelectSecret(args.RoomID, args.PlayerID, args.Token)
	return err
}

func (gs *GameService) DrawToken(args *DrawTokenArgs, reply *DrawTokenReply) (err error) {
	defer gs.observe("draw-token", time.Now(), &err)
	reply.Room, reply.Poisoned, err = gs.rooms.DrawToken(args.RoomID, args.PlayerID, args.Token)
	return err
}

func (gs *GameService) ResetGame(args *ResetGameArgs, reply *RoomReply) (err error) {
	defer gs.observe("reset-game", time.Now(), &err)
	reply.Room, err = gs.rooms.ResetGame(args.RoomID)
	return err
}

func (gs *GameService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) (err error) {
	defer gs.observe("list-rooms", time.Now(), &err)
	reply.Rooms = []string{}
	for _, id := range gs.rooms.ListRoomIDs() {
		if strings.HasPrefix(id, args.Prefix) {
			reply.Rooms = append(reply.Rooms, id)
		}
	}
	return nil
}

// History lists archived rounds, newest first.
func (gs *GameService) History(args *HistoryArgs, reply *HistoryReply) (err error) {
	defer gs.observe("history", time.Now(), &err)
	if gs.recorder == nil {
		return services.ErrNoArchive
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply.Records, err = gs.recorder.History(ctx, args.RoomID, args.Limit)
	return err
}

func (gs *GameService) observe(action string, start time.Time, err *error) {
	if gs.observer != nil {
		gs.observer.ObserveRequest(action, room.Outcome(*err), time.Since(start))
	}
}
