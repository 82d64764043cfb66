package bundle

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Unit is one compiled source file.
type Unit struct {
	Name     string `gorm:"primaryKey"`
	Hash     string
	Source   string
	Settings string
	Compiled bool
	Listing  string
}

// Function holds the listing of one compiled function.
type Function struct {
	Unit        string `gorm:"primaryKey;index"`
	Name        string `gorm:"primaryKey"`
	Ret         string
	ParamBytes  int
	Instrs      int
	Fingerprint string
	Listing     string
}

type Global struct {
	Unit string `gorm:"primaryKey;index"`
	Name string `gorm:"primaryKey"`
	Type string
	Init int64
}

// Diagnostic is a warning or error reported while compiling a unit.
type Diagnostic struct {
	ID       uint   `gorm:"primaryKey"`
	Unit     string `gorm:"index"`
	Severity string
	File     string
	Line     int
	Column   int
	Msg      string
	Warning  string
}

func getMigrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "202610190001",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Unit{}, &Function{}, &Diagnostic{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&Diagnostic{}, &Function{}, &Unit{})
			},
		},
		{
			ID: "202610190002",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Global{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&Global{})
			},
		},
		{
			ID: "202610200001",
			Migrate: func(tx *gorm.DB) error {
				for _, col := range []string{"Settings", "Compiled", "Listing"} {
					if tx.Migrator().HasColumn(&Unit{}, col) {
						continue
					}
					if err := tx.Migrator().AddColumn(&Unit{}, col); err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				for _, col := range []string{"Listing", "Compiled", "Settings"} {
					if err := tx.Migrator().DropColumn(&Unit{}, col); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// Migrate brings the schema of db up to date.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, getMigrations())
	return m.Migrate()
}

// CheckMigration reports whether every migration has been applied to db.
func CheckMigration(db *gorm.DB) (bool, error) {
	// A fresh database has no migrations table; keep gorm quiet about it.
	var lastMigration string
	err := db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)}).
		Table(gormigrate.DefaultOptions.TableName).
		Select("id").
		Order("id DESC").
		Limit(1).
		Scan(&lastMigration).Error
	if err != nil {
		return false, nil
	}

	migrations := getMigrations()
	return lastMigration == migrations[len(migrations)-1].ID, nil
}
