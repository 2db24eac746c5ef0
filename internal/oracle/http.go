package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type httpQuote struct {
	Price     string `json:"price"`
	Tradeable bool   `json:"tradeable"`
}

// HTTP returns an oracle that asks the host application for quotes over
// its internal price endpoint: GET {baseURL}/{instrument}. A 404 means
// the instrument is unknown and maps to ErrUnavailable.
func HTTP(baseURL, token string) Func {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context, instrument string) (Quote, error) {
		u := baseURL + "/" + url.PathEscape(instrument)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return Quote{}, err
		}
		if token != "" {
			req.Header.Set("X-Internal-Token", token)
		}
		resp, err := client.Do(req)
		if err != nil {
			return Quote{}, fmt.Errorf("oracle: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return Quote{}, ErrUnavailable
		}
		if resp.StatusCode != http.StatusOK {
			return Quote{}, fmt.Errorf("oracle: upstream status %d", resp.StatusCode)
		}
		var body httpQuote
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Quote{}, fmt.Errorf("oracle: decode quote: %w", err)
		}
		price, err := decimal.NewFromString(body.Price)
		if err != nil {
			return Quote{}, fmt.Errorf("oracle: bad price %q: %w", body.Price, err)
		}
		return Quote{Price: price, Tradeable: body.Tradeable}, nil
	}
}
