package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FallbackETHPerUSD is used when no live rate is available.
var FallbackETHPerUSD = decimal.RequireFromString("0.0003")

// ethPlaces is the precision of quoted ETH amounts.
const ethPlaces = 8

// DefaultReceiver takes payments when no valid receiver is configured.
var DefaultReceiver = common.HexToAddress("0x000000000000000000000000000000000000dead")

// Rates reports how many USD one ETH is worth.
type Rates interface {
	USDPerETH(ctx context.Context) (decimal.Decimal, error)
}

// CoinbaseRates reads the exchange-rates endpoint
// (`{"data":{"rates":{"USD":"..."}}}`).
type CoinbaseRates struct {
	url    string
	client *http.Client
}

func NewCoinbaseRates(url string, timeout time.Duration) *CoinbaseRates {
	return &CoinbaseRates{url: url, client: &http.Client{Timeout: timeout}}
}

func (c *CoinbaseRates) USDPerETH(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch eth rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch eth rate: status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Rates map[string]string `json:"rates"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode eth rate: %w", err)
	}
	rate, err := decimal.NewFromString(body.Data.Rates["USD"])
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid eth rate %q", body.Data.Rates["USD"])
	}
	return rate, nil
}

// ConvertUSDToETH prices usd in ETH, truncated to 8 decimals. A nil or
// failing rate source falls back to FallbackETHPerUSD.
func ConvertUSDToETH(ctx context.Context, rates Rates, usd decimal.Decimal) Quote {
	q := Quote{TotalUSD: usd}
	if rates != nil {
		rate, err := rates.USDPerETH(ctx)
		if err == nil {
			q.USDPerETH = rate
			q.AmountETH = usd.Div(rate).Truncate(ethPlaces)
			q.RateSource = RateLive
			return q
		}
		log.Printf("checkout: using fallback eth rate: %v", err)
	}
	q.USDPerETH = decimal.NewFromInt(1).Div(FallbackETHPerUSD)
	q.AmountETH = usd.Mul(FallbackETHPerUSD).Truncate(ethPlaces)
	q.RateSource = RateFallback
	return q
}

// ResolveReceiver returns addr when it is a 0x-prefixed 20-byte hex
// address, DefaultReceiver otherwise.
func ResolveReceiver(addr string) common.Address {
	addr = strings.TrimSpace(addr)
	if len(addr) == 42 && strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr) {
		return common.HexToAddress(addr)
	}
	return DefaultReceiver
}
