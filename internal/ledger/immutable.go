package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GoPolymarket/guildgate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrImmutableUpdate = errors.New("ledger: entries are append-only, update rejected")
	ErrImmutableDelete = errors.New("ledger: entries are append-only, delete rejected")
)

var ledgerTable = model.LedgerEntry{}.TableName()

const (
	triggerNoUpdate   = "ledger_entries_no_update"
	triggerNoDelete   = "ledger_entries_no_delete"
	triggerNoTruncate = "ledger_entries_no_truncate"
)

// ledgerTableRef matches the table with an optional schema qualifier, quoted
// or bare: ledger_entries, main.ledger_entries, "public"."ledger_entries".
const ledgerTableRef = `(?:["` + "`" + `]?\w+["` + "`" + `]?\s*\.\s*)?["` + "`" + `]?ledger_entries\b`

var (
	sqlComment       = regexp.MustCompile(`(?s)/\*.*?\*/|--[^\n]*`)
	rawUpdatePattern = regexp.MustCompile(`(?is)\bupdate\s+(?:only\s+)?` + ledgerTableRef +
		`|\b(?:insert\s+or\s+replace|replace)\s+into\s+` + ledgerTableRef +
		`|\binsert\s+into\s+` + ledgerTableRef + `.*\bdo\s+update\b`)
	rawDeletePattern = regexp.MustCompile(`(?is)\bdelete\s+from\s+(?:only\s+)?` + ledgerTableRef +
		`|\btruncate\s+(?:table\s+)?(?:only\s+)?` + ledgerTableRef +
		`|\bdrop\s+table\s+(?:if\s+exists\s+)?` + ledgerTableRef)
)

var sqliteGuards = []string{
	`CREATE TRIGGER IF NOT EXISTS ` + triggerNoUpdate + ` BEFORE UPDATE ON ledger_entries
BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only: update rejected'); END`,
	`CREATE TRIGGER IF NOT EXISTS ` + triggerNoDelete + ` BEFORE DELETE ON ledger_entries
BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only: delete rejected'); END`,
}

var postgresGuards = []string{
	`CREATE OR REPLACE FUNCTION ledger_entries_reject() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'ledger_entries is append-only: % rejected', lower(TG_OP);
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS ` + triggerNoUpdate + ` ON ledger_entries`,
	`CREATE TRIGGER ` + triggerNoUpdate + ` BEFORE UPDATE ON ledger_entries FOR EACH ROW EXECUTE FUNCTION ledger_entries_reject()`,
	`DROP TRIGGER IF EXISTS ` + triggerNoDelete + ` ON ledger_entries`,
	`CREATE TRIGGER ` + triggerNoDelete + ` BEFORE DELETE ON ledger_entries FOR EACH ROW EXECUTE FUNCTION ledger_entries_reject()`,
	`DROP TRIGGER IF EXISTS ` + triggerNoTruncate + ` ON ledger_entries`,
	`CREATE TRIGGER ` + triggerNoTruncate + ` BEFORE TRUNCATE ON ledger_entries FOR EACH STATEMENT EXECUTE FUNCTION ledger_entries_reject()`,
}

// installGuards creates database triggers that refuse updates and deletes of
// ledger entries for every client of the database, not only this process.
func installGuards(db *gorm.DB) error {
	var stmts []string
	switch db.Dialector.Name() {
	case "sqlite":
		stmts = sqliteGuards
	case "postgres":
		stmts = postgresGuards
	default:
		return fmt.Errorf("ledger: no append-only triggers for dialect %q", db.Dialector.Name())
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ledger: install append-only trigger: %w", err)
		}
	}
	return nil
}

const (
	cbUpdate = "ledger:immutable_update"
	cbDelete = "ledger:immutable_delete"
	cbUpsert = "ledger:immutable_upsert"
	cbRaw    = "ledger:immutable_raw"
	cbRow    = "ledger:immutable_row"
	cbQuery  = "ledger:immutable_query"
)

// RegisterImmutability installs callbacks on db that refuse every update or
// delete of ledger entries issued through gorm, including raw SQL. It is safe
// to call more than once.
func RegisterImmutability(db *gorm.DB) error {
	cb := db.Callback()
	if cb.Update().Get(cbUpdate) != nil {
		return nil
	}
	return errors.Join(
		cb.Update().Before("gorm:update").Register(cbUpdate, rejectUpdate),
		cb.Delete().Before("gorm:delete").Register(cbDelete, rejectDelete),
		cb.Create().Before("gorm:create").Register(cbUpsert, rejectUpsert),
		cb.Raw().Before("gorm:raw").Register(cbRaw, rejectRawSQL),
		cb.Row().Before("gorm:row").Register(cbRow, rejectRawSQL),
		cb.Query().Before("gorm:query").Register(cbQuery, rejectRawSQL),
	)
}

func rejectUpdate(db *gorm.DB) {
	if targetsLedger(db) {
		_ = db.AddError(ErrImmutableUpdate)
	}
}

func rejectDelete(db *gorm.DB) {
	if targetsLedger(db) {
		_ = db.AddError(ErrImmutableDelete)
	}
}

// rejectUpsert blocks ON CONFLICT ... DO UPDATE against existing entries.
func rejectUpsert(db *gorm.DB) {
	if !targetsLedger(db) {
		return
	}
	c, ok := db.Statement.Clauses["ON CONFLICT"]
	if !ok {
		return
	}
	if oc, ok := c.Expression.(clause.OnConflict); ok && (oc.UpdateAll || len(oc.DoUpdates) > 0) {
		_ = db.AddError(ErrImmutableUpdate)
	}
}

func rejectRawSQL(db *gorm.DB) {
	sql := db.Statement.SQL.String()
	if sql == "" {
		return
	}
	// 注释当作空白处理，避免 UPDATE/**/ledger_entries 绕过
	sql = sqlComment.ReplaceAllString(sql, " ")
	switch {
	case rawDeletePattern.MatchString(sql):
		_ = db.AddError(ErrImmutableDelete)
	case rawUpdatePattern.MatchString(sql):
		_ = db.AddError(ErrImmutableUpdate)
	}
}

func targetsLedger(db *gorm.DB) bool {
	if db.Statement.Schema != nil && db.Statement.Schema.Table == ledgerTable {
		return true
	}
	fields := strings.Fields(db.Statement.Table)
	if len(fields) == 0 {
		return false
	}
	name := fields[0]
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, "`\"") == ledgerTable
}
