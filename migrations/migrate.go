package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/dannyz30w/wavelength-games/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var embedMigrations embed.FS

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) { logger.Debugf(format, v...) }

func (gooseLogger) Fatalf(format string, v ...any) { logger.Fatalf(format, v...) }

// Migrate brings the schema at pgurl up to date.
func Migrate(pgurl string) error {
	migrationDB, err := sql.Open("pgx", pgurl)
	if err != nil {
		return fmt.Errorf("open migration db: %w", err)
	}
	defer migrationDB.Close()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(migrationDB, "."); err != nil {
		return fmt.Errorf("run up migrations: %w", err)
	}

	logger.Infof("migrations applied successfully")
	return nil
}
