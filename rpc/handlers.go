package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crowdsale/native/sale"
)

// errBadParams wraps every request-shape failure so the dispatcher can map it
// to the invalid-params code.
var errBadParams = errors.New("rpc: invalid params")

var mutatingMethods = map[string]bool{
	"sale_contributeNative":         true,
	"sale_contributeAsset":          true,
	"sale_settleExternal":           true,
	"sale_setIdentityVerified":      true,
	"sale_setIdentityVerifiedBatch": true,
	"sale_registerAsset":            true,
	"sale_deregisterAsset":          true,
	"sale_pause":                    true,
	"sale_unpause":                  true,
	"sale_emergencyWithdraw":        true,
	"bank_deposit":                  true,
	"oracle_pushRound":              true,
}

type rpcHandler func(params []json.RawMessage) (interface{}, error)

func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"sale_contributeNative":         s.contributeNative,
		"sale_contributeAsset":          s.contributeAsset,
		"sale_settleExternal":           s.settleExternal,
		"sale_setIdentityVerified":      s.setIdentityVerified,
		"sale_setIdentityVerifiedBatch": s.setIdentityVerifiedBatch,
		"sale_registerAsset":            s.registerAsset,
		"sale_deregisterAsset":          s.deregisterAsset,
		"sale_pause":                    s.pause,
		"sale_unpause":                  s.unpause,
		"sale_emergencyWithdraw":        s.emergencyWithdraw,
		"sale_getContributor":           s.getContributor,
		"sale_getCustody":               s.getCustody,
		"sale_listAssets":               s.listAssets,
		"sale_getStats":                 s.getStats,
		"sale_previewNative":            s.previewNative,
		"sale_previewAsset":             s.previewAsset,
		"sale_listJournal":              s.listJournal,
		"bank_deposit":                  s.bankDeposit,
		"bank_getBalance":               s.bankBalance,
		"oracle_pushRound":              s.oraclePushRound,
	}
}

func decodeParams(params []json.RawMessage, out interface{}) error {
	if len(params) != 1 {
		return fmt.Errorf("%w: expected a single object param", errBadParams)
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return fmt.Errorf("%w: %v", errBadParams, err)
	}
	return nil
}

// --- Contribution flows ---

type contributionResult struct {
	InstructionID string `json:"instructionId"`
	Contributor   string `json:"contributor"`
	Method        string `json:"method"`
	USDValue      string `json:"usdValue"`
	Shares        string `json:"shares"`
	Reference     string `json:"reference,omitempty"`
	Timestamp     uint64 `json:"timestamp"`
}

func newContributionResult(entry *sale.JournalEntry) contributionResult {
	return contributionResult{
		InstructionID: entry.InstructionID,
		Contributor:   encodeAddr(entry.Contributor),
		Method:        entry.Method,
		USDValue:      entry.USDValue.String(),
		Shares:        entry.Shares.String(),
		Reference:     entry.Reference,
		Timestamp:     entry.CreatedAt,
	}
}

func (s *Server) contributeNative(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	entry, err := s.engine.ContributeNative(caller, amount)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveContribution(entry.Method)
	s.refreshTotals()
	return newContributionResult(entry), nil
}

func (s *Server) contributeAsset(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
		Symbol string `json:"symbol"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	entry, err := s.engine.ContributeAsset(caller, p.Symbol, amount)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveContribution(entry.Method)
	s.refreshTotals()
	return newContributionResult(entry), nil
}

func (s *Server) settleExternal(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller      string `json:"caller"`
		Contributor string `json:"contributor"`
		USDAmount   string `json:"usdAmount"`
		Reference   string `json:"reference"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	contributor, err := parseAddr(p.Contributor)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.USDAmount)
	if err != nil {
		return nil, err
	}
	entry, err := s.engine.SettleExternal(caller, contributor, amount, p.Reference)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveContribution(entry.Method)
	s.refreshTotals()
	return newContributionResult(entry), nil
}

// --- Administration ---

type ackResult struct {
	OK bool `json:"ok"`
}

func (s *Server) setIdentityVerified(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller      string `json:"caller"`
		Contributor string `json:"contributor"`
		Verified    bool   `json:"verified"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	contributor, err := parseAddr(p.Contributor)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SetIdentityVerified(caller, contributor, p.Verified); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) setIdentityVerifiedBatch(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller       string   `json:"caller"`
		Contributors []string `json:"contributors"`
		Verified     []bool   `json:"verified"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	contributors := make([][20]byte, len(p.Contributors))
	for i, encoded := range p.Contributors {
		contributors[i], err = parseAddr(encoded)
		if err != nil {
			return nil, err
		}
	}
	if err := s.engine.SetIdentityVerifiedBatch(caller, contributors, p.Verified); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) registerAsset(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller   string `json:"caller"`
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
		FeedRef  string `json:"feedRef"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RegisterAsset(caller, p.Symbol, p.Decimals, p.FeedRef); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) deregisterAsset(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
		Symbol string `json:"symbol"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeregisterAsset(caller, p.Symbol); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) pause(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Pause(caller); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) unpause(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Unpause(caller); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) emergencyWithdraw(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Caller    string `json:"caller"`
		Recipient string `json:"recipient"`
		Symbol    string `json:"symbol"`
		Amount    string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddr(p.Caller)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAddr(p.Recipient)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.EmergencyWithdraw(caller, recipient, p.Symbol, amount); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

// --- Queries ---

type contributorResult struct {
	Address            string `json:"address"`
	NativeContributed  string `json:"nativeContributed"`
	USDContributed     string `json:"usdContributed"`
	SharesReceived     string `json:"sharesReceived"`
	Verified           bool   `json:"verified"`
	LastContributionAt uint64 `json:"lastContributionAt,omitempty"`
}

func (s *Server) getContributor(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Address string `json:"address"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddr(p.Address)
	if err != nil {
		return nil, err
	}
	record, err := s.engine.Contributor(addr)
	if err != nil {
		return nil, err
	}
	return contributorResult{
		Address:            encodeAddr(record.Address),
		NativeContributed:  record.NativeContributed.String(),
		USDContributed:     record.USDContributed.String(),
		SharesReceived:     record.SharesReceived.String(),
		Verified:           record.Verified,
		LastContributionAt: record.LastContributionAt,
	}, nil
}

func (s *Server) getCustody(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	balance, err := s.engine.CustodiedBalance(p.Symbol)
	if err != nil {
		return nil, err
	}
	return map[string]string{"symbol": p.Symbol, "balance": balance.String()}, nil
}

type assetResult struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	FeedRef  string `json:"feedRef,omitempty"`
	Active   bool   `json:"active"`
}

func (s *Server) listAssets(params []json.RawMessage) (interface{}, error) {
	assets, err := s.engine.SupportedAssets()
	if err != nil {
		return nil, err
	}
	out := make([]assetResult, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResult{
			Symbol:   asset.Symbol,
			Decimals: asset.Decimals,
			FeedRef:  asset.FeedRef,
			Active:   asset.Active,
		})
	}
	return out, nil
}

type statsResult struct {
	TotalNativeInflow  string `json:"totalNativeInflow"`
	TotalUSDValue      string `json:"totalUsdValue"`
	TotalSharesIssued  string `json:"totalSharesIssued"`
	UniqueContributors uint64 `json:"uniqueContributors"`
}

func (s *Server) getStats(params []json.RawMessage) (interface{}, error) {
	stats, err := s.engine.Stats()
	if err != nil {
		return nil, err
	}
	return statsResult{
		TotalNativeInflow:  stats.TotalNativeInflow.String(),
		TotalUSDValue:      stats.TotalUSDValue.String(),
		TotalSharesIssued:  stats.TotalSharesIssued.String(),
		UniqueContributors: stats.UniqueContributors,
	}, nil
}

func (s *Server) previewNative(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Amount string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	shares, err := s.engine.PreviewNativeShares(amount)
	if err != nil {
		return nil, err
	}
	return map[string]string{"shares": shares.String()}, nil
}

func (s *Server) previewAsset(params []json.RawMessage) (interface{}, error) {
	var p struct {
		Symbol string `json:"symbol"`
		Amount string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	shares, err := s.engine.PreviewAssetShares(p.Symbol, amount)
	if err != nil {
		return nil, err
	}
	return map[string]string{"shares": shares.String()}, nil
}

type journalResult struct {
	Entries    []contributionResult `json:"entries"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

func (s *Server) listJournal(params []json.RawMessage) (interface{}, error) {
	var p struct {
		StartTime int64  `json:"startTime"`
		EndTime   int64  `json:"endTime"`
		Cursor    string `json:"cursor"`
		Limit     int    `json:"limit"`
	}
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	entries, cursor, err := s.engine.Journal(p.StartTime, p.EndTime, p.Cursor, p.Limit)
	if err != nil {
		return nil, err
	}
	out := journalResult{Entries: make([]contributionResult, 0, len(entries)), NextCursor: cursor}
	for _, entry := range entries {
		out.Entries = append(out.Entries, newContributionResult(entry))
	}
	return out, nil
}

// --- Vault and oracle operations ---

func (s *Server) bankDeposit(params []json.RawMessage) (interface{}, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("rpc: vault deposits disabled")
	}
	var p struct {
		Account string `json:"account"`
		Symbol  string `json:"symbol"`
		Amount  string `json:"amount"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	account, err := parseAddr(p.Account)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Deposit(account, p.Symbol, amount); err != nil {
		return nil, err
	}
	return ackResult{OK: true}, nil
}

func (s *Server) bankBalance(params []json.RawMessage) (interface{}, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("rpc: vault deposits disabled")
	}
	var p struct {
		Account string `json:"account"`
		Symbol  string `json:"symbol"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	account, err := parseAddr(p.Account)
	if err != nil {
		return nil, err
	}
	balance, err := s.vault.Balance(account, p.Symbol)
	if err != nil {
		return nil, err
	}
	return map[string]string{"symbol": p.Symbol, "balance": balance.String()}, nil
}

func (s *Server) oraclePushRound(params []json.RawMessage) (interface{}, error) {
	if s.feed == nil {
		return nil, fmt.Errorf("rpc: manual price feed not configured")
	}
	var p struct {
		RoundID         uint64 `json:"roundId"`
		Price           string `json:"price"`
		UpdatedAt       int64  `json:"updatedAt"`
		AnsweredInRound uint64 `json:"answeredInRound"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	price, err := parseAmount(p.Price)
	if err != nil {
		return nil, err
	}
	updated := time.Unix(p.UpdatedAt, 0)
	if p.UpdatedAt == 0 {
		updated = time.Now()
	}
	answered := p.AnsweredInRound
	if answered == 0 {
		answered = p.RoundID
	}
	s.feed.SetRound(sale.RoundData{
		RoundID:         p.RoundID,
		Answer:          price,
		UpdatedAt:       updated,
		AnsweredInRound: answered,
	})
	return ackResult{OK: true}, nil
}
