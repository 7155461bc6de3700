package database

import (
	"testing"

	"playerwallet/internal/model"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, parseLogLevel("silent"))
	assert.Equal(t, logger.Error, parseLogLevel("ERROR"))
	assert.Equal(t, logger.Info, parseLogLevel("info"))
	assert.Equal(t, logger.Warn, parseLogLevel(""))
	assert.Equal(t, logger.Warn, parseLogLevel("verbose"))
}

func TestModels_PlayersBeforeHistories(t *testing.T) {
	models := Models()
	assert.IsType(t, &model.Player{}, models[0])
	assert.IsType(t, &model.History{}, models[1])
}
