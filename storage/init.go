package storage

import (
	"GoalEngine/config"
	"GoalEngine/storage/database"
	"GoalEngine/storage/mq"
	"GoalEngine/storage/redis"
)

// 统一 init storage 层，memory 通知模式下不连接 Postgres
func Init() error {
	if !config.Cfg.UseMemoryNotifier() {
		if err := database.Init(); err != nil {
			return err
		}
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if err := mq.Init(); err != nil {
		return err
	}

	return nil
}
