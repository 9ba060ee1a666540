package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpscope/internal/config"
	"pumpscope/internal/logger"
	"pumpscope/internal/sink"
)

func TestRenderChartHeaderOnlyFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "XYZ_2021-05-01 18.00.csv")
	require.NoError(t, sink.WriteCSV(csvPath, nil))

	_, err := RenderChart(context.Background(), csvPath, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trades in")
	assert.NotContains(t, err.Error(), "symbol required")
	assert.NoFileExists(t, filepath.Join(dir, "XYZ_2021-05-01 18.00.html"))
}

func TestRenderChartWritesHTML(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "XYZ_2021-05-01 18.00.csv")
	require.NoError(t, sink.WriteCSV(csvPath, sampleTrades("XYZ/BTC", 1619892000000, 30)))

	out, err := RenderChart(context.Background(), csvPath, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "XYZ_2021-05-01 18.00.html"), out)
	assert.FileExists(t, out)
}

func TestStartupSummaryLogsBlock(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(nil)
	logger.SetLevel("info")

	cfg := config.Default()
	cfg.Store.ArchiveTrades = false
	cfg.HTTP.Addr = ""
	cfg.Watch.Enabled = false
	newStartupSummary(cfg).Print()

	out := buf.String()
	assert.Contains(t, out, "STARTUP SUMMARY")
	assert.Contains(t, out, "archive:    -")
	assert.Contains(t, out, "http:       -")
	assert.Contains(t, out, "watch:      off")
}
