package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Balance represents a coin balance in the unified account
type Balance struct {
	Coin             string  `json:"coin"`
	WalletBalance    float64 `json:"walletBalance"`
	AvailableToTrade float64 `json:"availableToTrade"`
	Locked           float64 `json:"locked"`
}

// GetWalletBalances retrieves unified-account balances for all coins
func (c *Client) GetWalletBalances(ctx context.Context) ([]Balance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	return c.parseWalletResponse(result)
}

func (c *Client) parseWalletResponse(response interface{}) ([]Balance, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if serverResp.RetCode != 0 {
		return nil, &BybitError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var walletResult struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Locked              string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}

	var balances []Balance
	for _, account := range walletResult.List {
		for _, coin := range account.Coin {
			balances = append(balances, Balance{
				Coin:             coin.Coin,
				WalletBalance:    parseFloat(coin.WalletBalance),
				AvailableToTrade: parseFloat(coin.WalletBalance) - parseFloat(coin.Locked),
				Locked:           parseFloat(coin.Locked),
			})
		}
	}

	return balances, nil
}
