// Package catalog holds the static catalyst-type catalog: the canned
// retrieval queries, detection guidance, matching rubric and allowed impact
// areas for each of the nine catalyst types.
package catalog

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalyst-cli/internal/model"
)

// Version identifies the catalog revision. Bump it whenever queries or
// rubrics change so version rows can be traced back to the prompts that
// produced them.
const Version = "2025.10"

// Example is a worked update case shown to the Stage-2 generator.
type Example struct {
	Chunk     string
	Query     string
	Rationale string
	Current   string // JSON array of current catalysts
	Output    string // expected JSON output
}

// Definition is everything the pipeline knows about one catalyst type.
type Definition struct {
	Type        model.CatalystType
	Label       string
	Queries     [3]string
	Detect      []string
	Ignore      []string
	Matching    []string
	ImpactAreas []model.ImpactArea
	Example     Example
}

// Lookup returns the definition for t.
func Lookup(t model.CatalystType) (Definition, error) {
	switch t {
	case model.CatalystGuidanceOutlook:
		return guidanceOutlook, nil
	case model.CatalystProductInitiative:
		return productInitiative, nil
	case model.CatalystPartnershipDeal:
		return partnershipDeal, nil
	case model.CatalystCostEfficiency:
		return costEfficiency, nil
	case model.CatalystCapitalActions:
		return capitalActions, nil
	case model.CatalystRegulatoryPolicy:
		return regulatoryPolicy, nil
	case model.CatalystDemandTrends:
		return demandTrends, nil
	case model.CatalystRiskEvent:
		return riskEvent, nil
	case model.CatalystMacroPolicy:
		return macroPolicy, nil
	}
	return Definition{}, eris.Errorf("catalog: no definition for catalyst type %q", t)
}

// AllowsImpactArea reports whether a is listed for this type.
func (d Definition) AllowsImpactArea(a model.ImpactArea) bool {
	for _, v := range d.ImpactAreas {
		if v == a {
			return true
		}
	}
	return false
}

var guidanceOutlook = Definition{
	Type:  model.CatalystGuidanceOutlook,
	Label: "GUIDANCE / OUTLOOK",
	Queries: [3]string{
		"management updated revenue or EPS guidance",
		"guidance raised or lowered for next quarter or fiscal year",
		"guidance reaffirmed or withdrawn",
	},
	Detect: []string{
		"issues, raises, lowers, reaffirms or withdraws revenue, EPS, margin or cash flow guidance",
		"gives a quantified outlook for a named future period",
	},
	Ignore: []string{
		"aspirational long-range targets with no period attached",
		"recaps of results already reported",
	},
	Matching: []string{
		"same or overlapping guidance period (e.g. FY 2025, next quarter)",
		"same guided metric or impact_area (revenue, EPS, margin, demand, cashflow)",
		"reaffirmation language (\"unchanged\", \"as guided\", \"reaffirm\")",
		"an explicit revision, extension or elaboration of prior guidance",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactRevenue, model.ImpactEarnings, model.ImpactMargin, model.ImpactProfitability,
		model.ImpactCashflow, model.ImpactCapex, model.ImpactExpenses, model.ImpactVolume, model.ImpactDemand,
	},
	Example: Example{
		Chunk:     "We are reaffirming our full-year 2025 revenue guidance that we raised last quarter.",
		Query:     "guidance reaffirmed or withdrawn",
		Rationale: "Management reaffirmed guidance for the same fiscal period.",
		Current:   `[{"catalyst_id": "g1", "state": "announced", "title": "Raised FY2025 revenue guidance", "summary": "Raised full-year 2025 revenue guidance.", "impact_area": "revenue", "sentiment": 1}]`,
		Output:    `{"catalyst_id": "g1", "state": "updated", "title": "FY2025 revenue guidance reaffirmed after prior raise", "summary": "Reaffirmed FY2025 revenue guidance, holding the upward revision made last quarter.", "evidence": "We are reaffirming our full-year 2025 revenue guidance that we raised last quarter.", "time_horizon": 1, "certainty": "confirmed", "impact_area": "revenue", "sentiment": 0, "impact_magnitude": -1}`,
	},
}

var productInitiative = Definition{
	Type:  model.CatalystProductInitiative,
	Label: "PRODUCT / EXPANSION INITIATIVE",
	Queries: [3]string{
		"new product or service launch announced",
		"capacity expansion or production ramp",
		"entry into a new market or category",
	},
	Detect: []string{
		"launches a new product, service or feature",
		"expands into a new geography, category or market segment",
		"adds production capacity (factory, facility, line)",
		"reports ramp, rollout or pilot-to-scale progress on an announced initiative",
	},
	Ignore: []string{
		"generic innovation talk",
		"R&D updates without a named initiative or timeline",
	},
	Matching: []string{
		"same product, service, facility or project name",
		"same business objective (e.g. phase 2 of the same plant)",
		"progress, ramp, rollout or \"as previously announced\" language",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactRevenue, model.ImpactOperations, model.ImpactStrategy, model.ImpactTechnology,
		model.ImpactMarketExpansion, model.ImpactCapacity,
	},
	Example: Example{
		Chunk:     "We have begun mass production of our next-generation AI chip following last quarter's announcement.",
		Query:     "capacity expansion or production ramp",
		Rationale: "Company confirmed production ramp of a previously announced chip.",
		Current:   `[{"catalyst_id": "p1", "state": "announced", "title": "Next-gen AI chip launch", "summary": "Announced a next-generation AI chip last quarter.", "impact_area": "revenue", "sentiment": 1}]`,
		Output:    `{"catalyst_id": "p1", "state": "updated", "title": "AI chip mass production started", "summary": "Mass production began for the previously announced next-generation AI chip.", "evidence": "We have begun mass production of our next-generation AI chip following last quarter's announcement.", "time_horizon": 1, "certainty": "confirmed", "impact_area": "operations", "sentiment": 1, "impact_magnitude": 0}`,
	},
}

var partnershipDeal = Definition{
	Type:  model.CatalystPartnershipDeal,
	Label: "PARTNERSHIP / DEAL",
	Queries: [3]string{
		"partnership or strategic alliance announced",
		"major customer or supplier contract win",
		"merger acquisition or investment deal disclosed",
	},
	Detect: []string{
		"announces a partnership, collaboration or joint venture",
		"wins a major customer or supplier contract",
		"announces a merger, acquisition, divestiture or takeover",
		"signs a long-term licensing or distribution agreement",
	},
	Ignore: []string{
		"vague references to working with partners",
		"early-stage talks that are not binding or confirmed",
	},
	Matching: []string{
		"same partner, counterparty or target company",
		"same deal or agreement name or structure",
		"closing, integration or completion language (\"deal completed\", \"transaction finalized\")",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactRevenue, model.ImpactStrategy, model.ImpactOperations, model.ImpactMarketExpansion,
		model.ImpactTechnology, model.ImpactSupplyChain, model.ImpactFinancial,
	},
	Example: Example{
		Chunk:     "The merger with Orion Systems, first announced in Q2, has officially closed this month.",
		Query:     "merger acquisition or investment deal disclosed",
		Rationale: "Completion of a previously announced merger.",
		Current:   `[{"catalyst_id": "d1", "state": "announced", "title": "Merger with Orion Systems announced", "summary": "Agreed to merge with Orion Systems.", "impact_area": "strategy", "sentiment": 1}]`,
		Output:    `{"catalyst_id": "d1", "state": "realized", "title": "Merger with Orion Systems completed", "summary": "The Orion Systems merger announced in Q2 has closed.", "evidence": "The merger with Orion Systems, first announced in Q2, has officially closed this month.", "time_horizon": 0, "certainty": "confirmed", "impact_area": "strategy", "sentiment": 1, "impact_magnitude": 1}`,
	},
}

var costEfficiency = Definition{
	Type:  model.CatalystCostEfficiency,
	Label: "COST / EFFICIENCY",
	Queries: [3]string{
		"restructuring plan with layoffs announced",
		"cost reduction initiative to improve margins",
		"operational or margin improvement program",
	},
	Detect: []string{
		"announces layoffs, workforce reductions or hiring freezes",
		"launches a cost-saving, restructuring or margin program",
		"consolidates or closes facilities, divisions or business lines",
		"reports progress against announced savings targets",
	},
	Ignore: []string{
		"generic statements about cost focus",
		"cost comments without concrete actions, numbers or timing",
	},
	Matching: []string{
		"same cost or restructuring program",
		"same savings target, headcount initiative or operational area",
		"same fiscal period or named plan",
		"progress, completion or revision language (\"on track\", \"completed\", \"phase 2 underway\")",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactProfitability, model.ImpactOperations, model.ImpactCashflow, model.ImpactExpenses,
		model.ImpactMargin, model.ImpactHeadcount, model.ImpactProductivity,
	},
	Example: Example{
		Chunk:     "Our 2025 cost-reduction program is now complete, achieving over $200 million in savings.",
		Query:     "cost reduction initiative to improve margins",
		Rationale: "Completion of a named cost program with quantified savings.",
		Current:   `[{"catalyst_id": "c1", "state": "announced", "title": "2025 cost-reduction program announced", "summary": "Launched a 2025 program targeting $200M savings.", "impact_area": "profitability", "sentiment": 1}]`,
		Output:    `{"catalyst_id": "c1", "state": "realized", "title": "2025 cost-reduction program completed", "summary": "Completed the 2025 cost-reduction program with over $200M in savings.", "evidence": "Our 2025 cost-reduction program is now complete, achieving over $200 million in savings.", "time_horizon": 0, "certainty": "confirmed", "impact_area": "profitability", "sentiment": 1, "impact_magnitude": 0}`,
	},
}

var capitalActions = Definition{
	Type:  model.CatalystCapitalActions,
	Label: "CAPITAL ACTIONS",
	Queries: [3]string{
		"share repurchase or dividend change announced",
		"debt issuance refinancing or new credit facility",
		"equity offering or capital raise disclosed",
	},
	Detect: []string{
		"announces, changes or completes a buyback or dividend program",
		"issues, repays or refinances debt or equity",
		"opens, extends or amends a credit facility",
		"changes capital allocation policy (leverage target, payout ratio)",
	},
	Ignore: []string{
		"vague balance sheet commentary",
		"capital discipline talk without an explicit action",
	},
	Matching: []string{
		"same repurchase, dividend or financing program",
		"same impact_area (cashflow, financing, shareholder_return, leverage, liquidity)",
		"execution or completion language (\"executed\", \"fully repaid\", \"program completed\")",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactShareholderReturn, model.ImpactFinancing, model.ImpactCashflow,
		model.ImpactBalanceSheet, model.ImpactLeverage, model.ImpactLiquidity,
	},
	Example: Example{
		Chunk:     "Our $5 billion share-repurchase program, launched last year, has now been completed.",
		Query:     "share repurchase or dividend change announced",
		Rationale: "Completion of a previously announced buyback.",
		Current:   `[{"catalyst_id": "k1", "state": "announced", "title": "$5B share repurchase program announced", "summary": "Authorized a $5B buyback.", "impact_area": "shareholder_return", "sentiment": 1}]`,
		Output:    `{"catalyst_id": "k1", "state": "realized", "title": "Completed $5B share repurchase program", "summary": "The $5B buyback launched last year has been fully executed.", "evidence": "Our $5 billion share-repurchase program, launched last year, has now been completed.", "time_horizon": 0, "certainty": "confirmed", "impact_area": "shareholder_return", "sentiment": 1, "impact_magnitude": 0}`,
	},
}

var regulatoryPolicy = Definition{
	Type:  model.CatalystRegulatoryPolicy,
	Label: "REGULATORY / LEGAL",
	Queries: [3]string{
		"regulatory or government approval granted or filed",
		"investigation lawsuit settlement or fine announced",
		"antitrust or agency probe affecting the company",
	},
	Detect: []string{
		"files for, receives or is denied a regulatory approval",
		"faces or resolves a fine, lawsuit or investigation",
		"is directly affected by a new law, rule or enforcement action",
	},
	Ignore: []string{
		"industry-wide regulation with no company-specific action",
		"generic compliance commentary",
	},
	Matching: []string{
		"same case, application, approval or enforcement process",
		"same agency, court or authority",
		"same impact_area (compliance, legal, risk, policy, operations, revenue)",
		"procedural status or resolution (\"approved\", \"settled\", \"dismissed\", \"closed\")",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactCompliance, model.ImpactRisk, model.ImpactOperations, model.ImpactRevenue,
		model.ImpactLicensing, model.ImpactLegal, model.ImpactGovernance, model.ImpactPolicy,
	},
	Example: Example{
		Chunk:     "The SEC has formally closed its investigation into our accounting practices without further action.",
		Query:     "investigation lawsuit settlement or fine announced",
		Rationale: "Resolution of a disclosed regulatory investigation.",
		Current:   `[{"catalyst_id": "r1", "state": "announced", "title": "SEC investigation into accounting practices", "summary": "The SEC opened an inquiry into accounting practices.", "impact_area": "risk", "sentiment": -1}]`,
		Output:    `{"catalyst_id": "r1", "state": "realized", "title": "SEC accounting investigation closed", "summary": "The SEC closed its accounting investigation with no action.", "evidence": "The SEC has formally closed its investigation into our accounting practices without further action.", "time_horizon": 0, "certainty": "confirmed", "impact_area": "risk", "sentiment": 1, "impact_magnitude": 0}`,
	},
}

var demandTrends = Definition{
	Type:  model.CatalystDemandTrends,
	Label: "DEMAND TRENDS",
	Queries: [3]string{
		"company reported stronger or weaker demand",
		"orders bookings or backlog changed materially",
		"pricing or inventory conditions affecting sales",
	},
	Detect: []string{
		"reports stronger or weaker demand, bookings or orders",
		"discusses backlog, pipeline or volume inflection",
		"describes pricing or inventory normalization affecting sales",
		"calls out regional or seasonal demand shifts",
	},
	Ignore: []string{
		"market sentiment without direction or data",
		"competitor or sector trends not tied to the company",
	},
	Matching: []string{
		"same product, region or customer segment",
		"same impact_area (revenue, demand, volume, pricing, region, channel)",
		"continuity or reversal language (\"improved from\", \"stabilized\", \"softened further\")",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactRevenue, model.ImpactDemand, model.ImpactVolume, model.ImpactPricing,
		model.ImpactMacro, model.ImpactRegion, model.ImpactChannel, model.ImpactInventory,
	},
	Example: Example{
		Chunk:     "After two quarters of softness, we're now seeing stronger order momentum in our industrial segment.",
		Query:     "orders bookings or backlog changed materially",
		Rationale: "Reversal of a previously reported demand decline.",
		Current:   `[{"catalyst_id": "t1", "state": "announced", "title": "Industrial demand softens", "summary": "Industrial segment orders declined.", "impact_area": "demand", "sentiment": -1}]`,
		Output:    `{"catalyst_id": "t1", "state": "updated", "title": "Industrial demand recovering", "summary": "Industrial orders are strengthening after two soft quarters.", "evidence": "After two quarters of softness, we're now seeing stronger order momentum in our industrial segment.", "time_horizon": 1, "certainty": "confirmed", "impact_area": "demand", "sentiment": 1, "impact_magnitude": 0}`,
	},
}

var riskEvent = Definition{
	Type:  model.CatalystRiskEvent,
	Label: "RISK EVENT",
	Queries: [3]string{
		"unexpected project delay cancellation or withdrawal",
		"profit warning or negative earnings impact",
		"production halt recall outage or supply shortage",
	},
	Detect: []string{
		"a delay, cancellation or operational disruption",
		"a profit warning or negative pre-announcement",
		"supply chain issues, production halts, recalls or outages",
		"cybersecurity breaches, accidents, disasters or key executive departures",
	},
	Ignore: []string{
		"vague mentions of challenges without evidence",
		"unconfirmed third-party speculation",
	},
	Matching: []string{
		"same facility, product or disruption",
		"same impact_area (operations, earnings, demand, supply_chain)",
		"continuation, escalation or mitigation language (\"ongoing\", \"resolved\", \"reoccurred\")",
		"an explicit reference to a previously reported issue",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactOperations, model.ImpactSupplyChain, model.ImpactEarnings, model.ImpactDemand,
		model.ImpactFinancial, model.ImpactRegulatory, model.ImpactCybersecurity, model.ImpactReputation,
		model.ImpactLeadership, model.ImpactEnvironmental,
	},
	Example: Example{
		Chunk:     "Due to supply chain shortages, we expect production delays in our EV division through next quarter.",
		Query:     "production halt recall outage or supply shortage",
		Rationale: "Ongoing production disruption from supply shortages.",
		Current:   `[{"catalyst_id": "x1", "state": "announced", "title": "EV production delays announced", "summary": "EV output delayed by part shortages.", "impact_area": "supply_chain", "sentiment": -1}]`,
		Output:    `{"catalyst_id": "x1", "state": "updated", "title": "EV production delays continue", "summary": "Supply shortages will keep delaying EV production through next quarter.", "evidence": "Due to supply chain shortages, we expect production delays in our EV division through next quarter.", "time_horizon": 1, "certainty": "confirmed", "impact_area": "supply_chain", "sentiment": -1, "impact_magnitude": 0}`,
	},
}

var macroPolicy = Definition{
	Type:  model.CatalystMacroPolicy,
	Label: "MACRO / POLICY",
	Queries: [3]string{
		"interest rate or monetary policy shift affecting company",
		"tariffs trade restrictions or sanctions impacting operations",
		"fiscal or government policy influencing demand or investment",
	},
	Detect: []string{
		"central bank policy effects on the company",
		"inflation or currency effects on margins or demand",
		"tariffs, export controls, sanctions or subsidies",
		"fiscal policy or geopolitical events that directly affect the business",
	},
	Ignore: []string{
		"macro commentary without a company link",
		"long-term outlooks with no actionable effect",
	},
	Matching: []string{
		"same macro factor, policy or geopolitical driver",
		"same impact_area (macro, demand, cost, risk, trade_policy)",
		"continuity or resolution language (\"rates remain high\", \"sanctions eased\")",
		"an explicit tie back to a previously mentioned driver",
	},
	ImpactAreas: []model.ImpactArea{
		model.ImpactMacro, model.ImpactMonetaryPolicy, model.ImpactFiscalPolicy, model.ImpactTradePolicy,
		model.ImpactCurrencyFX, model.ImpactCommodityPrices, model.ImpactGeopolitical,
		model.ImpactInflationCost, model.ImpactDemand, model.ImpactRisk,
	},
	Example: Example{
		Chunk:     "With the Federal Reserve signaling rate cuts next quarter, we expect improved financing conditions for our expansion.",
		Query:     "interest rate or monetary policy shift affecting company",
		Rationale: "Monetary policy shift with a direct company financing effect.",
		Current:   `[{"catalyst_id": "m1", "state": "announced", "title": "Interest rates pressure financing costs", "summary": "Higher rates raised borrowing costs.", "impact_area": "macro", "sentiment": -1}]`,
		Output:    `{"catalyst_id": "m1", "state": "updated", "title": "Fed rate-cut outlook eases financing pressure", "summary": "Expected rate cuts should lower financing costs for expansion.", "evidence": "With the Federal Reserve signaling rate cuts next quarter, we expect improved financing conditions for our expansion.", "time_horizon": 1, "certainty": "planned", "impact_area": "macro", "sentiment": 1, "impact_magnitude": 0}`,
	},
}
