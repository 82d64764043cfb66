// Package bundle stores compiled units in an SQLite database so that
// listings can be compared across runs without recompiling.
package bundle

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/stmtc/pkg/codegen"
	"github.com/xplshn/stmtc/pkg/ir"
	"github.com/xplshn/stmtc/pkg/util"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Bundle struct {
	db *gorm.DB
}

// Open opens or creates the bundle at path and migrates its schema.
func Open(path string) (*Bundle, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate bundle: %w", err)
	}
	return &Bundle{db: db}, nil
}

func (b *Bundle) CheckMigration() (bool, error) { return CheckMigration(b.db) }

func (b *Bundle) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SourceHash is the content hash stored with every unit.
func SourceHash(src string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(src))
}

// Save replaces everything stored for unit name with the given compilation.
// settings identifies the configuration it was compiled with; a unit only
// counts as compiled when prog is set and diags holds no error.
func (b *Bundle) Save(name, src, settings string, prog *ir.Program, diags []util.Diagnostic) error {
	unit := Unit{Name: name, Hash: SourceHash(src), Source: src, Settings: settings, Compiled: prog != nil}
	for _, d := range diags {
		if d.Severity == util.SevError {
			unit.Compiled = false
		}
	}
	if unit.Compiled {
		var sb strings.Builder
		if err := codegen.WriteListing(&sb, prog); err != nil {
			return fmt.Errorf("listing unit %s: %w", name, err)
		}
		unit.Listing = sb.String()
	}

	return b.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&Function{}, &Global{}, &Diagnostic{}} {
			if err := tx.Where("unit = ?", name).Delete(model).Error; err != nil {
				return fmt.Errorf("clearing unit %s: %w", name, err)
			}
		}
		if err := tx.Save(&unit).Error; err != nil {
			return fmt.Errorf("saving unit %s: %w", name, err)
		}
		if prog != nil {
			for _, fn := range prog.Funcs {
				row := Function{
					Unit:        name,
					Name:        fn.Name,
					Ret:         fn.Ret.String(),
					ParamBytes:  fn.ParamBytes,
					Instrs:      len(fn.Code),
					Fingerprint: fmt.Sprintf("%016x", codegen.Fingerprint(fn)),
					Listing:     strings.Join(codegen.FuncListing(fn), "\n"),
				}
				if err := tx.Save(&row).Error; err != nil {
					return fmt.Errorf("saving function %s: %w", fn.Name, err)
				}
			}
			for _, g := range prog.Globals {
				row := Global{Unit: name, Name: g.Name, Type: g.Typ.String(), Init: g.Init}
				if err := tx.Save(&row).Error; err != nil {
					return fmt.Errorf("saving global %s: %w", g.Name, err)
				}
			}
		}
		for _, d := range diags {
			row := Diagnostic{
				Unit: name, Severity: d.Severity.String(), File: d.File,
				Line: d.Line, Column: d.Column, Msg: d.Msg, Warning: d.Warning,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("saving diagnostic: %w", err)
			}
		}
		return nil
	})
}

// Unit returns the stored unit called name.
func (b *Bundle) Unit(name string) (*Unit, error) {
	var u Unit
	if err := b.db.Where("name = ?", name).First(&u).Error; err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	return &u, nil
}

// Load returns a stored unit together with its functions.
func (b *Bundle) Load(name string) (*Unit, []Function, error) {
	u, err := b.Unit(name)
	if err != nil {
		return nil, nil, err
	}
	fns, err := b.Functions(name)
	if err != nil {
		return nil, nil, err
	}
	return u, fns, nil
}

// Functions lists the functions of a unit in name order.
func (b *Bundle) Functions(unit string) ([]Function, error) {
	var fns []Function
	if err := b.db.Where("unit = ?", unit).Order("name").Find(&fns).Error; err != nil {
		return nil, err
	}
	return fns, nil
}

func (b *Bundle) Globals(unit string) ([]Global, error) {
	var gs []Global
	if err := b.db.Where("unit = ?", unit).Order("name").Find(&gs).Error; err != nil {
		return nil, err
	}
	return gs, nil
}

func (b *Bundle) Diagnostics(unit string) ([]Diagnostic, error) {
	var ds []Diagnostic
	if err := b.db.Where("unit = ?", unit).Order("id").Find(&ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

// Changed reports whether src or the settings differ from what was stored
// for unit.
func (b *Bundle) Changed(unit, src, settings string) bool {
	u, err := b.Unit(unit)
	return err != nil || u.Hash != SourceHash(src) || u.Settings != settings
}
