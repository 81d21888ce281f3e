package collector

import (
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// poolTokensFromDTO splits one upstream pool resource into its pool row
// plus the base/quote token rows it embeds, so a single fetch can upsert
// all three tables without a second round trip.
func poolTokensFromDTO(network string, p geckoterminal.PoolDTO, now time.Time) (storage.Pool, []storage.Token) {
	var dexID, baseID, quoteID *string
	if p.DexID != "" {
		dexID = &p.DexID
	}
	var tokens []storage.Token
	if p.BaseToken.ID != "" {
		id := p.BaseToken.ID
		baseID = &id
		tokens = append(tokens, tokenFromDTO(network, p.BaseToken, now))
	}
	if p.QuoteToken.ID != "" {
		id := p.QuoteToken.ID
		quoteID = &id
		tokens = append(tokens, tokenFromDTO(network, p.QuoteToken, now))
	}

	pool := storage.Pool{
		ID:           p.ID,
		Address:      p.Address,
		Name:         p.Name,
		DexID:        dexID,
		BaseTokenID:  baseID,
		QuoteTokenID: quoteID,
		ReserveUSD:   p.ReserveUSD,
		LastUpdated:  now,
	}
	return pool, tokens
}

func tokenFromDTO(network string, t geckoterminal.TokenDTO, now time.Time) storage.Token {
	return storage.Token{
		ID:          t.ID,
		Address:     t.Address,
		Name:        t.Name,
		Symbol:      t.Symbol,
		Decimals:    t.Decimals,
		Network:     network,
		PriceUSD:    t.PriceUSD,
		LastUpdated: now,
	}
}
