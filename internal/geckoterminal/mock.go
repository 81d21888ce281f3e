package geckoterminal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

// MockClient satisfies API by reading tabular fixture files from disk, one
// CSV per method name (MultiPools and PoolByAddress look up rows in the
// top_pools fixture), selected by Config.Upstream.UseMockClient, so tests
// and local development run without network access. Fixtures are loaded
// lazily and cached per method name.
type MockClient struct {
	dir string

	mu    sync.Mutex
	cache map[string][]map[string]string
}

// NewMockClient builds a MockClient reading fixtures from dir.
func NewMockClient(dir string) *MockClient {
	return &MockClient{dir: dir, cache: make(map[string][]map[string]string)}
}

func (m *MockClient) rows(name string) ([]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rows, ok := m.cache[name]; ok {
		return rows, nil
	}

	path := filepath.Join(m.dir, name+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "geckoterminal_mock", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errs.Wrap(errs.KindParsing, "geckoterminal_mock", name, err)
	}
	if len(records) == 0 {
		m.cache[name] = nil
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	m.cache[name] = rows
	return rows, nil
}

func asFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func asInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func asInt64(v string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return n
}

func (m *MockClient) ListNetworks(ctx context.Context) ([]NetworkDTO, error) {
	rows, err := m.rows("list_networks")
	if err != nil {
		return nil, err
	}
	out := make([]NetworkDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, NetworkDTO{ID: r["id"], Name: r["name"]})
	}
	return out, nil
}

func (m *MockClient) ListDexes(ctx context.Context, network string) ([]DexDTO, error) {
	rows, err := m.rows("list_dexes")
	if err != nil {
		return nil, err
	}
	out := make([]DexDTO, 0, len(rows))
	for _, r := range rows {
		if r["network_id"] != "" && r["network_id"] != network {
			continue
		}
		out = append(out, DexDTO{ID: r["id"], Name: r["name"]})
	}
	return out, nil
}

func rowToPool(r map[string]string) PoolDTO {
	return PoolDTO{
		ID:                r["id"],
		Address:           r["address"],
		Name:              r["name"],
		DexID:             r["dex_id"],
		BaseToken:         TokenDTO{ID: r["base_token_id"], Symbol: r["base_symbol"]},
		QuoteToken:        TokenDTO{ID: r["quote_token_id"], Symbol: r["quote_symbol"]},
		ReserveUSD:        asFloat(r["reserve_in_usd"]),
		Volume24h:         asFloat(r["volume_usd_24h"]),
		BaseTokenPriceUSD: asFloat(r["base_token_price_usd"]),
		CreatedAt:         r["pool_created_at"],
		TxCount24h:        asInt(r["transactions_24h"]),
	}
}

func (m *MockClient) TopPools(ctx context.Context, network string) ([]PoolDTO, error) {
	rows, err := m.rows("top_pools")
	if err != nil {
		return nil, err
	}
	out := make([]PoolDTO, 0, len(rows))
	for _, r := range rows {
		if r["network"] != "" && r["network"] != network {
			continue
		}
		out = append(out, rowToPool(r))
	}
	return out, nil
}

func (m *MockClient) TopPoolsForDex(ctx context.Context, network, dex string) ([]PoolDTO, error) {
	rows, err := m.rows("top_pools_for_dex")
	if err != nil {
		return nil, err
	}
	out := make([]PoolDTO, 0, len(rows))
	for _, r := range rows {
		if r["dex_id"] != dex {
			continue
		}
		out = append(out, rowToPool(r))
	}
	return out, nil
}

func (m *MockClient) MultiPools(ctx context.Context, network string, ids []string) ([]PoolDTO, error) {
	rows, err := m.rows("top_pools")
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]PoolDTO, 0, len(ids))
	for _, r := range rows {
		if want[r["id"]] {
			out = append(out, rowToPool(r))
		}
	}
	return out, nil
}

func (m *MockClient) PoolByAddress(ctx context.Context, network, address string) (*PoolDTO, error) {
	rows, err := m.rows("top_pools")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r["address"] == address {
			p := rowToPool(r)
			return &p, nil
		}
	}
	return nil, errs.New(errs.KindValidation, "geckoterminal_mock", "pool_by_address", fmt.Sprintf("no fixture pool with address %s", address))
}

func (m *MockClient) NewPools(ctx context.Context, network string, page int) ([]PoolDTO, error) {
	rows, err := m.rows("new_pools")
	if err != nil {
		return nil, err
	}
	out := make([]PoolDTO, 0, len(rows))
	for _, r := range rows {
		if r["network"] != "" && r["network"] != network {
			continue
		}
		out = append(out, rowToPool(r))
	}
	return out, nil
}

func (m *MockClient) OHLCV(ctx context.Context, network, poolAddress string, tf Timeframe, params OHLCVParams) ([]CandleDTO, error) {
	rows, err := m.rows("ohlcv")
	if err != nil {
		return nil, err
	}
	out := make([]CandleDTO, 0, len(rows))
	for _, r := range rows {
		if r["pool_address"] != poolAddress {
			continue
		}
		ts := asInt64(r["timestamp_unix"])
		if params.BeforeTimestamp > 0 && ts >= params.BeforeTimestamp {
			continue
		}
		out = append(out, CandleDTO{
			TimestampUnix: ts,
			Open:          asFloat(r["open"]),
			High:          asFloat(r["high"]),
			Low:           asFloat(r["low"]),
			Close:         asFloat(r["close"]),
			VolumeUSD:     asFloat(r["volume_usd"]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampUnix > out[j].TimestampUnix })
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (m *MockClient) Trades(ctx context.Context, network, poolAddress string, params TradesParams) ([]TradeDTO, error) {
	rows, err := m.rows("trades")
	if err != nil {
		return nil, err
	}
	out := make([]TradeDTO, 0, len(rows))
	for _, r := range rows {
		if r["pool_address"] != poolAddress {
			continue
		}
		vol := asFloat(r["volume_usd"])
		if params.MinVolumeUSD > 0 && vol < params.MinVolumeUSD {
			continue
		}
		out = append(out, TradeDTO{
			ID:              r["id"],
			BlockNumber:     asInt64(r["block_number"]),
			TxHash:          r["tx_hash"],
			FromTokenAmount: asFloat(r["from_token_amount"]),
			ToTokenAmount:   asFloat(r["to_token_amount"]),
			PriceUSD:        asFloat(r["price_usd"]),
			VolumeUSD:       vol,
			Side:            r["side"],
			BlockTimestamp:  r["block_timestamp"],
		})
	}
	return out, nil
}

func (m *MockClient) TokenInfo(ctx context.Context, network, address string) (*TokenDTO, error) {
	rows, err := m.rows("token_info")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r["address"] != address {
			continue
		}
		tok := TokenDTO{
			ID:       r["id"],
			Address:  r["address"],
			Name:     r["name"],
			Symbol:   r["symbol"],
			Decimals: asInt(r["decimals"]),
			Network:  network,
		}
		if v, ok := r["price_usd"]; ok && v != "" {
			f := asFloat(v)
			tok.PriceUSD = &f
		}
		return &tok, nil
	}
	return nil, errs.New(errs.KindValidation, "geckoterminal_mock", "token_info", fmt.Sprintf("no fixture token at address %s", address))
}
