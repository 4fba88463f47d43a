package channel

import (
	"strings"
)

// DataKind 个股实时数据类型
type DataKind string

const (
	KindQuote    DataKind = "QUOTE"
	KindBidOffer DataKind = "BID_OFFER"
	KindBidOdd   DataKind = "BID_ODD"
	KindQuoteOdd DataKind = "QUOTE_ODD"
)

// Market 交易所/市场标识
type Market string

const (
	MarketHSX   Market = "HSX"
	MarketHNX   Market = "HNX"
	MarketUPCOM Market = "UPCOM"
)

// Topic 市场级别的频道主题
type Topic string

const (
	TopicStatus     Topic = "status"
	TopicDealNotice Topic = "dealNotice"
	TopicAdvertise  Topic = "advertised"
)

const prefix = "market."

// ForSymbol 根据个股代码与数据类型返回频道名
// 例: (SSI, QUOTE) -> market.quote.SSI
// 未识别的类型统一映射到零股报价频道 market.quote.oddlot.<symbol>，
// 以兼容行情源新增的数据类型
func ForSymbol(symbol string, kind DataKind) string {
	switch kind {
	case KindQuote:
		return prefix + "quote." + symbol
	case KindBidOffer:
		return prefix + "bidoffer." + symbol
	case KindBidOdd:
		return prefix + "oddlot." + symbol
	default:
		return prefix + "quote.oddlot." + symbol
	}
}

// ForMarket 根据市场与主题返回频道名
// status 是全市场共享频道，忽略 market 参数
// 未识别的主题按 market.<topic>.<market> 拼接
func ForMarket(market Market, topic Topic) string {
	switch topic {
	case TopicStatus:
		return MarketStatus
	case TopicDealNotice:
		return prefix + "dealNotice." + string(market)
	case TopicAdvertise:
		return prefix + "advertised." + string(market)
	default:
		return prefix + string(topic) + "." + string(market)
	}
}

// MarketStatus 市场状态频道（唯一、无参数）
const MarketStatus = prefix + "status"

// ParseDataKind 解析配置中的数据类型，大小写与连字符不敏感
func ParseDataKind(s string) (DataKind, bool) {
	k := strings.ToUpper(strings.TrimSpace(s))
	k = strings.ReplaceAll(k, "-", "_")
	switch DataKind(k) {
	case KindQuote, KindBidOffer, KindBidOdd, KindQuoteOdd:
		return DataKind(k), true
	}
	return "", false
}

// ParseMarket 解析市场标识
func ParseMarket(s string) (Market, bool) {
	m := Market(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MarketHSX, MarketHNX, MarketUPCOM:
		return m, true
	}
	return "", false
}

// NormalizeSymbols 去空白、转大写、去重，保持原有顺序
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
