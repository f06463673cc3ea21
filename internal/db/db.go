package db

import (
	"fmt"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
)

// Connect opens the configured database. Driver "sqlite" keeps local
// development self-contained; production runs on mysql.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = gormsqlite.Open(dsn)
	case "", "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return gdb, nil
}

// Migrate creates/updates the chat_session and chat_message tables.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&chat.Session{}, &chat.Message{})
}
