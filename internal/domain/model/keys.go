package model

// 缓存键，与 REST 快照查询使用的键保持一致

const keyPrefix = "market."

// MarketStatusKey 全市场状态列表
func MarketStatusKey() string { return keyPrefix + "status" }

// DealNoticeKey 某市场的协议成交数据
func DealNoticeKey(market string) string { return keyPrefix + "dealNotice." + market }

// AdvertiseKey 某市场的广告单数据
func AdvertiseKey(market string) string { return keyPrefix + "advertise." + market }

// StockKey 个股行情快照
func StockKey(symbol string) string { return keyPrefix + "stock." + symbol }
