package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 描述打开数据库所需的参数
type Options struct {
	Driver string // sqlite | postgres
	Path   string // sqlite 文件路径
	URL    string // postgres DSN
	Silent bool
}

// Open 打开数据库连接并执行自动迁移。
// Path 为空时回退到默认值 habitkit.db。
func Open(opts Options) (*gorm.DB, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	cfg := &gorm.Config{}
	if opts.Silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite 只允许单写者，限制为单连接避免 database is locked
	if gdb.Dialector.Name() == "sqlite" {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "sqlite":
		path := strings.TrimSpace(opts.Path)
		if path == "" {
			path = "habitkit.db"
		}
		if !strings.HasPrefix(path, "file:") {
			if err := ensureParentDir(path); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(path), nil
	case "postgres":
		if strings.TrimSpace(opts.URL) == "" {
			return nil, errors.New("postgres url is required")
		}
		return postgres.Open(opts.URL), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// Migrate 为全部模型创建或更新表结构
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&Profile{},
		&Habit{},
		&HabitEntry{},
		&Goal{},
		&Task{},
		&Value{},
		&TrackedStateDef{},
		&StateEntry{},
		&Reward{},
		&UserReward{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping 检查连接池是否可用，用于健康检查
func Ping(ctx context.Context, sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("database not initialized")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close 关闭底层连接池
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
