// state/interfaces.go
package state

// RoomContext is what the game machine's guards need to know about a room.
// The room package implements it; defining it here breaks the import cycle.
type RoomContext interface {
	PlayerCount() int
	AllSecretsChosen() bool
	HasWinner() bool
}
