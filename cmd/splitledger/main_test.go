package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/config"
	"github.com/warp/splitledger/ledger"
)

func TestPrintBalances(t *testing.T) {
	var buf bytes.Buffer
	rows := []ledger.CounterpartyBalance{
		{Party: "bob", Amount: ledger.MustParseDecimal("30")},
		{Party: "carol", Amount: ledger.MustParseDecimal("-12.5")},
	}

	require.NoError(t, printBalances(&buf, rows, 1))

	out := buf.String()
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "owes you")
	assert.Contains(t, out, "30.00")
	assert.Contains(t, out, "you owe")
	assert.Contains(t, out, "-12.50")
	assert.Contains(t, out, "1 corrupt entries were skipped")
}

func TestPrintBalances_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBalances(&buf, nil, 0))
	assert.Contains(t, buf.String(), "All settled up.")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}
