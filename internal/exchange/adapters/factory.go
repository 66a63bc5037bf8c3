package adapters

import (
	"fmt"

	"github.com/ducminhle1904/crypto-trading-core/internal/config"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange/bybit"
)

// New builds the exchange adapter selected by the configuration.
func New(cfg *config.Config) (exchange.Exchange, error) {
	switch cfg.Exchange.Name {
	case "paper":
		return exchange.NewPaperExchange(map[string]float64{
			"USDT": cfg.Portfolio.InitialBalance,
		}), nil
	case "bybit":
		return NewBybitAdapter(bybit.Config{
			APIKey:    cfg.Exchange.APIKey,
			APISecret: cfg.Exchange.APISecret,
			Category:  cfg.Exchange.Category,
			Testnet:   cfg.Exchange.Testnet,
			Demo:      cfg.Exchange.Demo,
		})
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.Exchange.Name)
	}
}
