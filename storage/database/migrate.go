package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"GoalEngine/internal/model"
	"GoalEngine/pkg/logger"
)

// Migrate 创建通知注册表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.L().Info("Starting database migration...")

	if err := db.AutoMigrate(&model.Registration{}); err != nil {
		logger.L().Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.L().Info("Database migration completed successfully")
	return nil
}
