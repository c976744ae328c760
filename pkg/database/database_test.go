package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/suteetoe/billing-service/pkg/config"
	"gorm.io/gorm/logger"
)

func TestInitDBUnreachable(t *testing.T) {
	cfg := &config.Config{
		DB: config.DBConfig{
			Host:            "127.0.0.1",
			Port:            "1",
			User:            "postgres",
			Password:        "password",
			DBName:          "billing_service",
			SSLMode:         "disable",
			MaxIdleConns:    1,
			MaxOpenConns:    1,
			ConnMaxLifetime: time.Minute,
			LogLevel:        logger.Silent,
		},
		Server: config.ServerConfig{Env: "test"},
	}

	db, err := InitDB(cfg)
	assert.Error(t, err)
	assert.Nil(t, db)
}
