package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	return rows, <-errCh
}

func TestStreamCSV_Basic(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_HeaderGoesToHeaderChannel(t *testing.T) {
	headerCh := make(chan []string, 1)
	input := "Nr. crt,CUI,Suma\n1,123,\"5.000 lei\"\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)

	assert.Equal(t, []string{"Nr. crt", "CUI", "Suma"}, <-headerCh)
	assert.Equal(t, [][]string{{"1", "123", "5.000 lei"}}, rows)
}

func TestStreamCSV_StripsByteOrderMark(t *testing.T) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("\ufeffNr,CUI\n1,2\n"), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	_, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nr", "CUI"}, <-headerCh)
}

func TestStreamCSV_VariableFieldCounts(t *testing.T) {
	input := "a,b,c\n1,2\n1,2,3,4\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{HasHeader: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 4)
}

func TestStreamCSV_EmbeddedNewlineInQuotedField(t *testing.T) {
	input := "a,b\n\"line one\nline two\",x\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{HasHeader: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "line one\nline two", rows[0][0])
}

func TestStreamCSV_SemicolonDelimiter(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a;b\n1;2\n"), CSVOptions{Delimiter: ';'})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, rows[1])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(" a , b \n"), CSVOptions{TrimSpace: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := "a,b\n5 \"lei\" brut,2\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")

	rowCh, errCh = StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{LazyQuotes: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, `5 "lei" brut`, rows[1][0])
}

func TestStreamCSV_Empty(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{HasHeader: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
