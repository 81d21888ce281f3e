package collector

import (
	"context"
	"fmt"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// DexListCollector refreshes the DEX directory for one network. Collection
// key is dex_monitoring_<network>.
type DexListCollector struct {
	noValidation
	Network string
	Client  geckoterminal.API
	Store   storage.Store
}

func (c *DexListCollector) Key() string {
	return fmt.Sprintf("dex_monitoring_%s", c.Network)
}

func (c *DexListCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	dexes, err := c.Client.ListDexes(ctx, c.Network)
	if err != nil {
		return res, err
	}
	res.RecordsCollected = len(dexes)
	for _, d := range dexes {
		if err := c.Store.UpsertDex(ctx, storage.Dex{
			ID:        d.ID,
			Name:      d.Name,
			NetworkID: c.Network,
		}); err != nil {
			return res, err
		}
		res.RecordsStored++
	}
	return res, nil
}
