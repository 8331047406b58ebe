package model

import (
	"github.com/rotisserie/eris"
)

// CatalystType is one of the nine fixed catalyst categories.
type CatalystType string

const (
	CatalystGuidanceOutlook   CatalystType = "guidance_outlook"
	CatalystProductInitiative CatalystType = "product_initiative"
	CatalystPartnershipDeal   CatalystType = "partnership_deal"
	CatalystCostEfficiency    CatalystType = "cost_efficiency"
	CatalystCapitalActions    CatalystType = "capital_actions"
	CatalystRegulatoryPolicy  CatalystType = "regulatory_policy"
	CatalystDemandTrends      CatalystType = "demand_trends"
	CatalystRiskEvent         CatalystType = "risk_event"
	CatalystMacroPolicy       CatalystType = "macro_policy"
)

var allCatalystTypes = [...]CatalystType{
	CatalystGuidanceOutlook,
	CatalystProductInitiative,
	CatalystPartnershipDeal,
	CatalystCostEfficiency,
	CatalystCapitalActions,
	CatalystRegulatoryPolicy,
	CatalystDemandTrends,
	CatalystRiskEvent,
	CatalystMacroPolicy,
}

// AllCatalystTypes returns the catalyst types in declaration order.
func AllCatalystTypes() []CatalystType {
	out := make([]CatalystType, len(allCatalystTypes))
	copy(out, allCatalystTypes[:])
	return out
}

// Valid reports whether t is one of the nine catalyst types.
func (t CatalystType) Valid() bool {
	for _, c := range allCatalystTypes {
		if c == t {
			return true
		}
	}
	return false
}

// ParseCatalystType validates s as a catalyst type.
func ParseCatalystType(s string) (CatalystType, error) {
	t := CatalystType(s)
	if !t.Valid() {
		return "", eris.Errorf("unknown catalyst type %q", s)
	}
	return t, nil
}

// SourceType identifies the corpus a session reads from.
type SourceType string

const (
	SourceNews               SourceType = "news"
	SourceEarningsTranscript SourceType = "earnings_transcript"
)

// ParseSourceType validates s as a source type.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceNews, SourceEarningsTranscript:
		return SourceType(s), nil
	default:
		return "", eris.Errorf("unknown source type %q", s)
	}
}

// Frequency returns the ingestion batch label for the source: news is
// monthly, transcripts are quarterly.
func (s SourceType) Frequency() string {
	if s == SourceEarningsTranscript {
		return "quarterly"
	}
	return "monthly"
}

// LifecycleState is the lifecycle stage of a catalyst.
type LifecycleState string

const (
	StateAnnounced LifecycleState = "announced"
	StateUpdated   LifecycleState = "updated"
	StateWithdrawn LifecycleState = "withdrawn"
	StateRealized  LifecycleState = "realized"
)

// Valid reports whether s is a known lifecycle state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateAnnounced, StateUpdated, StateWithdrawn, StateRealized:
		return true
	}
	return false
}

// Certainty is how firm the reported event is.
type Certainty string

const (
	CertaintyConfirmed Certainty = "confirmed"
	CertaintyPlanned   Certainty = "planned"
	CertaintyRumor     Certainty = "rumor"
	CertaintyDenied    Certainty = "denied"
)

// Valid reports whether c is a known certainty level.
func (c Certainty) Valid() bool {
	switch c {
	case CertaintyConfirmed, CertaintyPlanned, CertaintyRumor, CertaintyDenied:
		return true
	}
	return false
}

// TimeHorizon buckets when the event is expected to matter.
type TimeHorizon int

const (
	HorizonShort TimeHorizon = 0 // <= 1 week
	HorizonMid   TimeHorizon = 1 // <= 3 months
	HorizonLong  TimeHorizon = 2 // > 3 months
)

// Valid reports whether h is a known horizon.
func (h TimeHorizon) Valid() bool {
	return h >= HorizonShort && h <= HorizonLong
}

// Tri is a -1/0/1 scale used for sentiment and impact magnitude.
type Tri int

// Valid reports whether v is -1, 0 or 1.
func (v Tri) Valid() bool {
	return v >= -1 && v <= 1
}

// ImpactArea is the business area a catalyst affects.
type ImpactArea string

const (
	ImpactRevenue           ImpactArea = "revenue"
	ImpactEarnings          ImpactArea = "earnings"
	ImpactMargin            ImpactArea = "margin"
	ImpactProfitability     ImpactArea = "profitability"
	ImpactCashflow          ImpactArea = "cashflow"
	ImpactExpenses          ImpactArea = "expenses"
	ImpactCapex             ImpactArea = "capex"
	ImpactOperations        ImpactArea = "operations"
	ImpactSupplyChain       ImpactArea = "supply_chain"
	ImpactCapacity          ImpactArea = "capacity"
	ImpactProductivity      ImpactArea = "productivity"
	ImpactHeadcount         ImpactArea = "headcount"
	ImpactTechnology        ImpactArea = "technology"
	ImpactStrategy          ImpactArea = "strategy"
	ImpactMarketExpansion   ImpactArea = "market_expansion"
	ImpactDemand            ImpactArea = "demand"
	ImpactVolume            ImpactArea = "volume"
	ImpactPricing           ImpactArea = "pricing"
	ImpactChannel           ImpactArea = "channel"
	ImpactInventory         ImpactArea = "inventory"
	ImpactShareholderReturn ImpactArea = "shareholder_return"
	ImpactFinancing         ImpactArea = "financing"
	ImpactBalanceSheet      ImpactArea = "balance_sheet"
	ImpactLeverage          ImpactArea = "leverage"
	ImpactLiquidity         ImpactArea = "liquidity"
	ImpactFinancial         ImpactArea = "financial"
	ImpactCompliance        ImpactArea = "compliance"
	ImpactRegulatory        ImpactArea = "regulatory"
	ImpactLegal             ImpactArea = "legal"
	ImpactGovernance        ImpactArea = "governance"
	ImpactPolicy            ImpactArea = "policy"
	ImpactLicensing         ImpactArea = "licensing"
	ImpactRisk              ImpactArea = "risk"
	ImpactMacro             ImpactArea = "macro"
	ImpactMonetaryPolicy    ImpactArea = "monetary_policy"
	ImpactFiscalPolicy      ImpactArea = "fiscal_policy"
	ImpactTradePolicy       ImpactArea = "trade_policy"
	ImpactCurrencyFX        ImpactArea = "currency_fx"
	ImpactCommodityPrices   ImpactArea = "commodity_prices"
	ImpactInflationCost     ImpactArea = "inflation_cost"
	ImpactGeopolitical      ImpactArea = "geopolitical"
	ImpactRegion            ImpactArea = "region"
	ImpactCybersecurity     ImpactArea = "cybersecurity"
	ImpactReputation        ImpactArea = "reputation"
	ImpactLeadership        ImpactArea = "leadership"
	ImpactEnvironmental     ImpactArea = "environmental"
)

var impactAreas = map[ImpactArea]struct{}{
	ImpactRevenue: {}, ImpactEarnings: {}, ImpactMargin: {}, ImpactProfitability: {},
	ImpactCashflow: {}, ImpactExpenses: {}, ImpactCapex: {}, ImpactOperations: {},
	ImpactSupplyChain: {}, ImpactCapacity: {}, ImpactProductivity: {}, ImpactHeadcount: {},
	ImpactTechnology: {}, ImpactStrategy: {}, ImpactMarketExpansion: {}, ImpactDemand: {},
	ImpactVolume: {}, ImpactPricing: {}, ImpactChannel: {}, ImpactInventory: {},
	ImpactShareholderReturn: {}, ImpactFinancing: {}, ImpactBalanceSheet: {}, ImpactLeverage: {},
	ImpactLiquidity: {}, ImpactFinancial: {}, ImpactCompliance: {}, ImpactRegulatory: {},
	ImpactLegal: {}, ImpactGovernance: {}, ImpactPolicy: {}, ImpactLicensing: {},
	ImpactRisk: {}, ImpactMacro: {}, ImpactMonetaryPolicy: {}, ImpactFiscalPolicy: {},
	ImpactTradePolicy: {}, ImpactCurrencyFX: {}, ImpactCommodityPrices: {}, ImpactInflationCost: {},
	ImpactGeopolitical: {}, ImpactRegion: {}, ImpactCybersecurity: {}, ImpactReputation: {},
	ImpactLeadership: {}, ImpactEnvironmental: {},
}

// Valid reports whether a is in the closed impact area set.
func (a ImpactArea) Valid() bool {
	_, ok := impactAreas[a]
	return ok
}

// Candidate is the Stage-1 relevance verdict for one chunk.
type Candidate struct {
	IsCatalyst   bool         `json:"is_catalyst"`
	Rationale    string       `json:"rationale"`
	CatalystType CatalystType `json:"catalyst_type"`
}

// Catalyst is a resolved catalyst entity. Nullable attributes are pointers
// so that "unknown" survives the round trip through the generator and the store.
type Catalyst struct {
	CatalystID      string         `json:"catalyst_id"`
	CatalystType    CatalystType   `json:"catalyst_type"`
	State           LifecycleState `json:"state"`
	Title           string         `json:"title"`
	Summary         string         `json:"summary"`
	Evidence        string         `json:"evidence"`
	TimeHorizon     *TimeHorizon   `json:"time_horizon"`
	Certainty       *Certainty     `json:"certainty"`
	ImpactArea      *ImpactArea    `json:"impact_area"`
	Sentiment       Tri            `json:"sentiment"`
	ImpactMagnitude Tri            `json:"impact_magnitude"`
}
