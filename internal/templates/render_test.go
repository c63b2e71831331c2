package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-landmatrix/internal/chart"
	"github.com/joeblew999/plat-landmatrix/internal/legend"
)

func TestDefaultFragments(t *testing.T) {
	r := Default()

	out, err := r.Render("chart", map[string]any{
		"Bars":  []chart.Bar{{Code: "BRA", Hectares: 1_500_000}, {Code: "ARG", Hectares: 750_000}},
		"Total": 2_250_000.0,
		"Max":   1_500_000.0,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "BRA")
	assert.Contains(t, out, "1,500,000 ha")
	assert.Contains(t, out, "width:50%")

	out, err = r.Render("chart", map[string]any{"Bars": []chart.Bar{}, "Total": 0.0, "Max": 0.0})
	require.NoError(t, err)
	assert.Contains(t, out, "empty-state")

	out, err = r.Render("popup", legend.Popup{Title: "Deal #7", Country: "Peru"})
	require.NoError(t, err)
	assert.Contains(t, out, "Deal #7")

	out, err = r.Render("events", "abc-123")
	require.NoError(t, err)
	assert.Contains(t, out, `data-init="@get('/api/v1/viewer/events?sessionid=abc-123')"`)
}

func TestOverrideAndReload(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tips.html"),
		[]byte(`{{define "tips"}}custom {{len .}}{{end}}`), 0644))
	require.NoError(t, r.Reload(dir))

	out, err := r.Render("tips", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "custom 2", out)

	// Missing directory falls back to the embedded set.
	_, err = New(filepath.Join(dir, "nope"))
	assert.NoError(t, err)
}
