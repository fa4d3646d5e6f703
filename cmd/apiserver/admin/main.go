package main

import (
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"

	"connect-go/internal/config"
	"connect-go/internal/storage"
)

func main() {
	if err := newRootCmd(openConfiguredDB).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openConfiguredDB 按配置文件 / 环境变量连接数据库。
func openConfiguredDB(configPath string) (*gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("无法加载配置: %w", err)
	}
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Printf("admin: connected to %s database %s", cfg.Database.Type, cfg.Database.DBName)
	return db, nil
}
