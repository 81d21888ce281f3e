package geckoterminal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(body), 0o644))
}

func TestMockClientTopPoolsFiltersByNetwork(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "top_pools",
		"id,address,name,dex_id,base_token_id,base_symbol,quote_token_id,quote_symbol,reserve_in_usd,volume_usd_24h,pool_created_at,transactions_24h,network\n"+
			"p1,0x1,Pool One,heaven,t1,ABC,t2,SOL,1000,500,2026-01-01T00:00:00Z,10,solana\n"+
			"p2,0x2,Pool Two,heaven,t3,XYZ,t2,SOL,2000,700,2026-01-02T00:00:00Z,20,ethereum\n")

	c := NewMockClient(dir)
	pools, err := c.TopPools(context.Background(), "solana")
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "p1", pools[0].ID)
}

func TestMockClientMultiPoolsReturnsOnlyRequested(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "top_pools",
		"id,address,name,dex_id,base_token_id,base_symbol,quote_token_id,quote_symbol,reserve_in_usd,volume_usd_24h,pool_created_at,transactions_24h,network\n"+
			"p1,0x1,Pool One,heaven,t1,ABC,t2,SOL,1000,500,2026-01-01T00:00:00Z,10,solana\n"+
			"p2,0x2,Pool Two,heaven,t3,XYZ,t2,SOL,2000,700,2026-01-02T00:00:00Z,20,solana\n"+
			"p3,0x3,Pool Three,heaven,t4,LMN,t2,SOL,3000,900,2026-01-03T00:00:00Z,30,solana\n")

	c := NewMockClient(dir)
	pools, err := c.MultiPools(context.Background(), "solana", []string{"p1", "p3"})
	require.NoError(t, err)
	require.Len(t, pools, 2)
	ids := map[string]bool{pools[0].ID: true, pools[1].ID: true}
	assert.True(t, ids["p1"] && ids["p3"], "ids = %v, want p1 and p3", ids)
}

func TestMockClientOHLCVFiltersByBeforeTimestampAndLimit(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "ohlcv",
		"pool_address,timestamp_unix,open,high,low,close,volume_usd\n"+
			"0xabc,3600,1,1.1,0.9,1.05,100\n"+
			"0xabc,7200,1.05,1.2,1.0,1.1,200\n"+
			"0xabc,10800,1.1,1.3,1.05,1.2,300\n")

	c := NewMockClient(dir)
	candles, err := c.OHLCV(context.Background(), "solana", "0xabc", TimeframeHour, OHLCVParams{BeforeTimestamp: 10800, Limit: 1})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(7200), candles[0].TimestampUnix, "want the newest candle before 10800")
}

func TestMockClientTradesFiltersByMinVolume(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "trades",
		"id,pool_address,block_number,tx_hash,from_token_amount,to_token_amount,price_usd,volume_usd,side,block_timestamp\n"+
			"tr1,0xabc,100,0xh1,1,2,1.5,50,buy,2026-01-01T00:00:00Z\n"+
			"tr2,0xabc,101,0xh2,3,4,1.5,5000,sell,2026-01-01T00:01:00Z\n")

	c := NewMockClient(dir)
	trades, err := c.Trades(context.Background(), "solana", "0xabc", TradesParams{MinVolumeUSD: 1000})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "tr2", trades[0].ID)
}

func TestMockClientTokenInfoNotFoundIsValidationError(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "token_info", "id,address,name,symbol,decimals,price_usd\n")

	c := NewMockClient(dir)
	_, err := c.TokenInfo(context.Background(), "solana", "0xmissing")
	assert.Error(t, err, "expected an error for an address absent from the fixture")
	assert.Equal(t, errs.KindValidation, errs.As(err).Kind)
}
