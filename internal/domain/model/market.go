package model

// SideBuy 广告单买方标记，其余值一律视为卖方
const SideBuy = "BUY"

// MarketStatus 市场交易状态，以 (Market, Type) 作为唯一键
type MarketStatus struct {
	Market          string `json:"market"`
	Status          string `json:"status,omitempty"`
	LastTradingDate string `json:"lastTradingDate,omitempty"`
	LastMarketInit  int64  `json:"lastMarketInit,omitempty"`
	Type            string `json:"type"`
}

// DealNotice 协议成交（大宗交易）通知
type DealNotice struct {
	Symbol string  `json:"s"`
	Time   int64   `json:"ti"`
	Market string  `json:"m"`
	Price  float64 `json:"ptmp"`
	Volume float64 `json:"ptmvo"` // 本笔成交量
	Value  float64 `json:"ptmva"` // 本笔成交额
	TotVol float64 `json:"ptvo"`
	TotVal float64 `json:"ptva"`
}

// DealNoticeData 某市场的协议成交累计数据
type DealNoticeData struct {
	AccVolume float64      `json:"accVolume"`
	AccValue  float64      `json:"accValue"`
	Data      []DealNotice `json:"data"`
}

// Advertise 协议交易广告单
type Advertise struct {
	Symbol string  `json:"s"`
	Time   int64   `json:"ti"`
	Side   string  `json:"sb"`
	Market string  `json:"m"`
	Price  float64 `json:"p"`
	Volume float64 `json:"v"`
}

// AdvertiseData 按买卖方向分桶的广告单列表，最新的在前
type AdvertiseData struct {
	Buy  []Advertise `json:"buy"`
	Sell []Advertise `json:"sell"`
}

// SymbolData 个股行情快照。字段集合随行情源演进，
// 这里保留原始 JSON 对象，按字段浅合并
type SymbolData map[string]any

// Symbol 返回个股代码（字段 s）
func (d SymbolData) Symbol() string {
	s, _ := d["s"].(string)
	return s
}
