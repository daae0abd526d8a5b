// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	gorm.Model
	RoomID       string    `gorm:"index;not null"`
	WinnerID     string    `gorm:"index;not null"`
	WinnerName   string    `gorm:"not null"`
	LoserID      string    `gorm:"index;not null"`
	LoserName    string    `gorm:"not null"`
	WinnerSecret string    `gorm:"not null"`
	LoserSecret  string    `gorm:"not null"`
	Draws        int       `gorm:"default:0"`
	FinishedAt   time.Time `gorm:"index;not null"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

func GormGameRecordFrom(r GameRecord) GormGameRecord {
	return GormGameRecord{
		RoomID:       r.RoomID,
		WinnerID:     r.WinnerID,
		WinnerName:   r.WinnerName,
		LoserID:      r.LoserID,
		LoserName:    r.LoserName,
		WinnerSecret: r.WinnerSecret,
		LoserSecret:  r.LoserSecret,
		Draws:        r.Draws,
		FinishedAt:   r.FinishedAt,
	}
}

func (g GormGameRecord) Record() GameRecord {
	return GameRecord{
		RoomID:       g.RoomID,
		WinnerID:     g.WinnerID,
		WinnerName:   g.WinnerName,
		LoserID:      g.LoserID,
		LoserName:    g.LoserName,
		WinnerSecret: g.WinnerSecret,
		LoserSecret:  g.LoserSecret,
		Draws:        g.Draws,
		FinishedAt:   g.FinishedAt,
	}
}
