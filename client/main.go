package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/poisonheart/models"
	"github.com/wfunc/poisonheart/network"
	"github.com/wfunc/poisonheart/token"
)

const usage = `commands:
  create [roomId]    create a room (random id if omitted)
  join <roomId>      join a room
  watch <roomId>     follow a room without joining
  secret <n|color>   choose your poison token
  draw <n|color>     draw a token
  reset              start a new round
  tokens             list the token catalog
  quit`

// parseToken accepts a catalog index or a color code.
func parseToken(arg string) string {
	if i, err := strconv.Atoi(arg); err == nil && i >= 0 && i < token.Size {
		return token.At(i)
	}
	return arg
}

func send(conn *network.WSConnection, msgID uint16, req network.Request) {
	data, err := json.Marshal(req)
	if err != nil {
		log.Println("Encode error:", err)
		return
	}
	if err := conn.Send(msgID, data); err != nil {
		log.Println("Write error:", err)
	}
}

func printRoom(data []byte, playerID string) {
	var r models.Room
	if err := json.Unmarshal(data, &r); err != nil {
		log.Printf("<- bad room state: %v", err)
		return
	}
	log.Printf("<- room %s phase=%s turn=%s", r.ID, r.Phase, r.CurrentTurn)
	for _, p := range r.Players {
		marker := " "
		if p.ID == playerID {
			marker = "*"
		}
		drawn := make([]int, len(p.DrawnTokens))
		for i, t := range p.DrawnTokens {
			drawn[i] = token.Index(t)
		}
		log.Printf("   %s %s (%s) drawn=%v eliminated=%v", marker, p.Name, p.ID, drawn, p.IsEliminated)
	}
	if r.Winner != nil {
		log.Printf("   winner: %s", *r.Winner)
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	name := flag.String("name", "player", "display name")
	flag.Parse()

	playerID := uuid.NewString()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s as %s (%s)", u.String(), *name, playerID)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	conn := network.NewWSConnection(c)
	defer conn.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			packet, err := conn.ReadPacket()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			switch packet.MsgID {
			case network.MsgTypeRoomState:
				printRoom(packet.Data, playerID)
			case network.MsgTypeKeepAlive:
				send(conn, network.MsgTypeHeartbeat, network.Request{})
			default:
				log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	log.Println(usage)

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			arg := ""
			if len(fields) > 1 {
				arg = fields[1]
			}

			switch fields[0] {
			case "create":
				send(conn, network.MsgTypeCreateRoom, network.Request{RoomID: arg, PlayerName: *name, PlayerID: playerID})
			case "join":
				send(conn, network.MsgTypeJoinRoom, network.Request{RoomID: arg, PlayerName: *name, PlayerID: playerID})
			case "watch":
				send(conn, network.MsgTypeSubscribe, network.Request{RoomID: arg})
			case "secret":
				send(conn, network.MsgTypeSelectSecret, network.Request{PlayerID: playerID, Token: parseToken(arg)})
			case "draw":
				send(conn, network.MsgTypeDrawToken, network.Request{PlayerID: playerID, Token: parseToken(arg)})
			case "reset":
				send(conn, network.MsgTypeResetGame, network.Request{})
			case "tokens":
				for i, t := range token.Catalog() {
					log.Printf("%2d %s", i, t)
				}
			case "quit":
				return
			default:
				log.Println(usage)
			}
		}
	}
}
