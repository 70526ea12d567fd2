package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPDFExporterRender(t *testing.T) {
	exporter := NewPDFExporter()
	data := Dataset{
		Headers: []string{"Assessment", "User", "Status"},
		Rows: []map[string]string{
			{"Assessment": "Worksheet", "User": "Student One", "Status": "APPROVED"},
		},
	}

	out, err := exporter.Render(data, "Submissions Report")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out), "%PDF"))
}

func TestPDFExporterEmptyDataset(t *testing.T) {
	exporter := NewPDFExporter()

	out, err := exporter.Render(Dataset{Headers: []string{"Assessment"}}, "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out), "%PDF"))
}

func TestPDFExporterRejectsMissingHeaders(t *testing.T) {
	exporter := NewPDFExporter()

	_, err := exporter.Render(Dataset{}, "Submissions Report")
	require.Error(t, err)
}

func TestTruncateLimitsCellWidth(t *testing.T) {
	long := strings.Repeat("a", 40)

	got := truncate(long)
	require.Len(t, []rune(got), pdfCellRunes)
	require.True(t, strings.HasSuffix(got, "..."))
	require.Equal(t, "short value", truncate("short value"))
}
