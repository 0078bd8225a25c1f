package migration

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/glebarez/sqlite"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	quotadomain "github.com/natebag/MLG-BETA/internal/quota/domain"
	"github.com/natebag/MLG-BETA/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	assert.True(t, names["000001_quota_ledger.up.sql"])
	assert.True(t, names["000001_quota_ledger.down.sql"])
	assert.True(t, names["000002_ledger_incidents.up.sql"])
	assert.True(t, names["000002_ledger_incidents.down.sql"])
	assert.True(t, names["000003_quota_period_end.up.sql"])
	assert.True(t, names["000003_quota_period_end.down.sql"])
}

func TestRunCreatesSQLiteSchema(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Run(conn, db.TypeSQLite))
	require.NoError(t, Run(conn, db.TypeSQLite))

	for _, table := range []string{"quota_states", "ledger_entries", "ledger_incidents"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex(&ledgerdomain.LedgerEntry{}, "ux_ledger_entries_tuple"))
	assert.True(t, conn.Migrator().HasColumn(&quotadomain.QuotaState{}, "period_ends_at"))
}

func TestRunRequiresHandle(t *testing.T) {
	assert.Error(t, Run(nil, db.TypeSQLite))
	assert.Error(t, RunPostgres(nil))
}
