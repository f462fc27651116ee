package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketVault/internal/model"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.txt")
	require.NoError(t, os.WriteFile(path, []byte(`# watchlist
us:aapl
hk:00700   # tencent

cn:600519
us:AAPL
`), 0o644))

	syms, err := Load(path, []string{"us:MSFT", "cn:600519"})
	require.NoError(t, err)
	assert.Equal(t, []model.Symbol{
		model.MustParseSymbol("us:AAPL"),
		model.MustParseSymbol("hk:00700"),
		model.MustParseSymbol("cn:600519"),
		model.MustParseSymbol("us:MSFT"),
	}, syms)
}

func TestLoadReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.txt")
	require.NoError(t, os.WriteFile(path, []byte("us:AAPL\nAAPL\n"), 0o644))
	_, err := Load(path, nil)
	assert.ErrorContains(t, err, ":2:")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), nil)
	assert.Error(t, err)

	syms, err := Load("", []string{"hk:00005"})
	require.NoError(t, err)
	assert.Len(t, syms, 1)
}

func TestFilter(t *testing.T) {
	syms, err := Parse([]string{"us:AAPL", "hk:00700", "us:MSFT"})
	require.NoError(t, err)
	assert.Len(t, Filter(syms, model.MarketUS), 2)
	assert.Len(t, Filter(syms, ""), 3)
	assert.Empty(t, Filter(syms, model.MarketCN))
}
