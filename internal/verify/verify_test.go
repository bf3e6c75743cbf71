package verify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lherron/msgmerge/internal/schema"
	"github.com/lherron/msgmerge/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refSchema = schema.NewBuilder("refs").
	Table(schema.TableSpec{Name: "jid", HasID: true}).
	Table(schema.TableSpec{
		Name:  "chat",
		HasID: true,
		Refs: []schema.RefSpec{
			schema.Ref("jid_row_id", "jid"),
			schema.IgnoredRef("last_read_row_id", "jid"),
		},
	}).
	MustBuild()

var refDDL = []string{
	`CREATE TABLE jid (_id INTEGER PRIMARY KEY)`,
	`CREATE TABLE chat (_id INTEGER PRIMARY KEY, jid_row_id INTEGER, last_read_row_id INTEGER)`,
	`INSERT INTO jid VALUES (1), (2), (3)`,
}

func TestVerifyConsistentDatabase(t *testing.T) {
	database, _ := testutil.TempDB(t, append(refDDL,
		`INSERT INTO chat VALUES (1, 1, 0), (2, 2, NULL), (3, 2, 3), (4, NULL, 0)`,
	)...)

	report, err := Verify(refSchema, database, Options{Strict: true})
	require.NoError(t, err)
	require.True(t, report.Consistent())
	require.Len(t, report.Results, 2)

	jid := report.Results[0]
	assert.Equal(t, "jid_row_id", jid.Column)
	assert.Equal(t, 4, jid.Rows)
	assert.Equal(t, 2, jid.Expected)
	assert.Equal(t, int64(2), jid.Found)
}

func TestVerifyStrictFailsOnMissingReferences(t *testing.T) {
	database, path := testutil.TempDB(t, append(refDDL,
		`INSERT INTO chat VALUES (1, 1, NULL), (2, 9, NULL), (3, 12, NULL), (4, 9, NULL)`,
	)...)

	report, err := Verify(refSchema, database, Options{Strict: true})
	var consErr *ConsistencyError
	require.True(t, errors.As(err, &consErr), "got %v", err)

	assert.Equal(t, path, consErr.Database)
	assert.Equal(t, 3, consErr.Result.Expected)
	assert.Equal(t, int64(1), consErr.Result.Found)
	assert.Equal(t, []string{"9", "12"}, consErr.Result.Missing)
	assert.Equal(t, int64(3), consErr.TargetRows)
	assert.Equal(t, int64(4), consErr.TableRows)
	assert.Contains(t, err.Error(), "missing=[9, 12]")
	assert.False(t, report.Consistent())
}

func TestVerifyIgnoredReferencesOnlyWarn(t *testing.T) {
	database, _ := testutil.TempDB(t, append(refDDL,
		`INSERT INTO chat VALUES (1, 1, -1), (2, 2, 44)`,
	)...)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	report, err := Verify(refSchema, database, Options{Strict: true, Logger: logger})
	require.NoError(t, err)

	violations := report.Violations()
	require.Len(t, violations, 1)
	assert.True(t, violations[0].Ignored)
	assert.Equal(t, []string{"-1", "44"}, violations[0].Missing)
	assert.Contains(t, buf.String(), "level=warning")
}

func TestVerifyLenientReportsEverything(t *testing.T) {
	database, _ := testutil.TempDB(t, append(refDDL,
		`INSERT INTO chat VALUES (1, 7, 8)`,
	)...)

	report, err := Verify(refSchema, database, Options{Strict: false})
	require.NoError(t, err)
	assert.Len(t, report.Violations(), 2)
}
