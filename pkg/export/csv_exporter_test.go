package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"ci", "areas"},
		Rows: []map[string]string{
			{"ci": "1234567", "areas": "Física, Matemáticas"},
			{"ci": "7654321"},
		},
	}

	out, err := NewCSVExporter(false).Render(data)
	require.NoError(t, err)
	assert.Equal(t, "ci,areas\n1234567,\"Física, Matemáticas\"\n7654321,\n", string(out))

	out, err = NewCSVExporter(true).Render(data)
	require.NoError(t, err)
	assert.Equal(t, "\xEF\xBB\xBFci;areas\n1234567;Física, Matemáticas\n7654321;\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(false).Render(Dataset{})
	assert.Error(t, err)
}
