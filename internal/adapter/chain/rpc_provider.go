package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// RPCProvider implements Provider over EVM JSON-RPC. It translates the
// endpoint's throttling and range-rejection responses into the sentinel
// errors the scan client adapts to.
type RPCProvider struct {
	url    string
	client *http.Client
	nextID atomic.Int64
}

// NewRPCProvider creates a provider for one HTTP JSON-RPC endpoint.
func NewRPCProvider(url string, timeout time.Duration) *RPCProvider {
	return &RPCProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// BlockHeight returns the endpoint's current head block number.
func (p *RPCProvider) BlockHeight(ctx context.Context) (int64, error) {
	var hexHeight string
	if err := p.call(ctx, "eth_blockNumber", nil, &hexHeight); err != nil {
		return 0, err
	}
	return parseHexInt64(hexHeight)
}

// BlockByNumber fetches one block, with full transaction objects when
// withTransactions is set.
func (p *RPCProvider) BlockByNumber(ctx context.Context, number int64, withTransactions bool) (*Block, error) {
	var raw struct {
		Number       string `json:"number"`
		Transactions []struct {
			Hash  string  `json:"hash"`
			From  string  `json:"from"`
			To    *string `json:"to"`
			Value string  `json:"value"`
		} `json:"transactions"`
	}
	params := []any{hexInt64(number), withTransactions}
	if err := p.call(ctx, "eth_getBlockByNumber", params, &raw); err != nil {
		return nil, err
	}

	block := &Block{Number: number}
	for _, tx := range raw.Transactions {
		// Contract creations have no recipient.
		if tx.To == nil {
			continue
		}
		value, err := parseHexBig(tx.Value)
		if err != nil {
			return nil, fmt.Errorf("malformed value in tx %s: %w", tx.Hash, err)
		}
		block.Transactions = append(block.Transactions, Transaction{
			Hash:  tx.Hash,
			From:  strings.ToLower(tx.From),
			To:    strings.ToLower(*tx.To),
			Value: decimal.NewFromBigInt(value, 0),
		})
	}

	return block, nil
}

// FilterLogs fetches event logs matching the filter.
func (p *RPCProvider) FilterLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	// Topic positions: [0] event signature (set by the caller via the scan
	// client), [1] sender, [2] recipient.
	topics := []any{transferTopic, nil}
	if len(filter.RecipientTopics) > 0 {
		topics = append(topics, filter.RecipientTopics)
	}

	query := map[string]any{
		"fromBlock": hexInt64(filter.FromBlock),
		"toBlock":   hexInt64(filter.ToBlock),
		"address":   filter.Addresses,
		"topics":    topics,
	}

	var raw []struct {
		TransactionHash string   `json:"transactionHash"`
		LogIndex        string   `json:"logIndex"`
		BlockNumber     string   `json:"blockNumber"`
		Address         string   `json:"address"`
		Topics          []string `json:"topics"`
		Data            string   `json:"data"`
	}
	if err := p.call(ctx, "eth_getLogs", []any{query}, &raw); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(raw))
	for _, l := range raw {
		logIndex, err := parseHexInt64(l.LogIndex)
		if err != nil {
			return nil, fmt.Errorf("malformed log index in tx %s: %w", l.TransactionHash, err)
		}
		blockNumber, err := parseHexInt64(l.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("malformed block number in tx %s: %w", l.TransactionHash, err)
		}
		logs = append(logs, Log{
			TxHash:      l.TransactionHash,
			LogIndex:    int(logIndex),
			BlockNumber: blockNumber,
			Address:     strings.ToLower(l.Address),
			Topics:      l.Topics,
			Data:        l.Data,
		})
	}

	return logs, nil
}

func (p *RPCProvider) call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return classifyRPCError(method, rpcResp.Error)
	}

	return json.Unmarshal(rpcResp.Result, result)
}

// classifyRPCError maps vendor error responses onto the sentinel errors.
// -32005 is the conventional limit-exceeded code; message matching covers
// endpoints that use generic codes.
func classifyRPCError(method string, rpcErr *rpcError) error {
	msg := strings.ToLower(rpcErr.Message)
	switch {
	case rpcErr.Code == -32005 && strings.Contains(msg, "range"),
		strings.Contains(msg, "block range"),
		strings.Contains(msg, "too many results"):
		return ErrRangeTooLarge
	case rpcErr.Code == -32005, rpcErr.Code == -32097,
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return ErrRateLimited
	default:
		return fmt.Errorf("rpc %s: %s (code %d)", method, rpcErr.Message, rpcErr.Code)
	}
}

func hexInt64(n int64) string {
	return "0x" + strings.ToLower(fmt.Sprintf("%x", n))
}

func parseHexInt64(s string) (int64, error) {
	v, err := parseHexBig(s)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("hex value %s overflows int64", s)
	}
	return v.Int64(), nil
}

func parseHexBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty hex value")
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex value %q", s)
	}
	return v, nil
}
