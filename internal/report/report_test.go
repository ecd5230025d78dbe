package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progression/internal/simulate"
)

func TestPrinterPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPrinter(10)
	err := p.Print(&buf, "demo", simulate.Summary{
		Completed:   1,
		Cancelled:   1,
		FinalValues: []float64{1, 0.5},
	})
	require.NoError(t, err)

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "demo")
	require.Contains(t, lines[1], "100.0%")
	require.Contains(t, lines[1], "done")
	require.Contains(t, lines[2], " 50.0%")
	require.Contains(t, lines[2], "stopped")
	require.Contains(t, lines[3], "2 runs, 1 completed, 1 cancelled")
}

func TestPrinterGroupsLargeCounts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	values := make([]float64, 1200)
	require.NoError(t, NewPrinter(0).Print(&buf, "bulk", simulate.Summary{Completed: 1200, FinalValues: values}))
	require.Contains(t, buf.String(), "1,200 runs, 1,200 completed, 0 cancelled")
	require.Contains(t, buf.String(), "run 1,200")
}

func TestPadLeft(t *testing.T) {
	t.Parallel()

	require.Equal(t, "   7", padLeft("7", 4))
	require.Equal(t, "12345", padLeft("12345", 4))
}
