package models

import (
	"time"
)

// SessionFile is one credential file mirrored from the auth folder.
type SessionFile struct {
	Filename  string    `gorm:"primaryKey;type:varchar(255)" json:"filename"`
	Content   []byte    `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SessionFile) TableName() string {
	return "sessions"
}

// Setting is a persisted key/value pair, e.g. the command prefix.
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// All lists every model the bot migrates, in copy order.
func All() []interface{} {
	return []interface{}{
		&SessionFile{},
		&Setting{},
	}
}
