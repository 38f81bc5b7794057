package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestInsertBuildsPortableConflictClause(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "bursar:bursar@tcp(127.0.0.1:3306)/bursar?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true})
	require.NoError(t, err)

	var statement string
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture", func(tx *gorm.DB) {
		statement = tx.Statement.SQL.String()
	}))

	_, err = Provide().Insert(context.Background(), db, &domain.FinanceTransaction{
		ID:            snowflake.ID(1),
		SchoolID:      snowflake.ID(2),
		StudentID:     snowflake.ID(3),
		Type:          domain.EntryTypeCredit,
		Amount:        500,
		Term:          1,
		Year:          2025,
		Date:          time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		ReferenceType: domain.ReferenceTypeFeePayment,
		ReferenceID:   snowflake.ID(4),
		CreatedAt:     time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, statement, "INSERT INTO `finance_transactions`")
	assert.Contains(t, statement, "ON DUPLICATE KEY UPDATE")
	assert.NotContains(t, statement, "ON CONFLICT")
}
