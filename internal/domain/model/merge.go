package model

// MergeMarketStatus 把一条状态更新合并进已有列表：
// 只替换 (Market, Type) 相同的条目，其余条目保持不变。
// 列表为 nil 时返回只含该更新的列表；找不到匹配条目时列表原样返回
func MergeMarketStatus(old []MarketStatus, update MarketStatus) []MarketStatus {
	if old == nil {
		return []MarketStatus{update}
	}
	out := make([]MarketStatus, len(old))
	for i, entity := range old {
		if entity.Market == update.Market && entity.Type == update.Type {
			out[i] = overlayStatus(entity, update)
			continue
		}
		out[i] = entity
	}
	return out
}

// overlayStatus 非零字段覆盖旧值
func overlayStatus(base, update MarketStatus) MarketStatus {
	if update.Status != "" {
		base.Status = update.Status
	}
	if update.LastTradingDate != "" {
		base.LastTradingDate = update.LastTradingDate
	}
	if update.LastMarketInit != 0 {
		base.LastMarketInit = update.LastMarketInit
	}
	return base
}

// ApplyDealNotice 累加成交量/额并把新通知放到列表最前
func ApplyDealNotice(old *DealNoticeData, msg DealNotice) DealNoticeData {
	var prev DealNoticeData
	if old != nil {
		prev = *old
	}
	data := make([]DealNotice, 0, len(prev.Data)+1)
	data = append(data, msg)
	data = append(data, prev.Data...)
	return DealNoticeData{
		AccVolume: prev.AccVolume + msg.Volume,
		AccValue:  prev.AccValue + msg.Value,
		Data:      data,
	}
}

// ApplyAdvertise 按买卖方向把广告单放到对应列表最前
func ApplyAdvertise(old *AdvertiseData, msg Advertise) AdvertiseData {
	out := AdvertiseData{Buy: []Advertise{}, Sell: []Advertise{}}
	if old != nil {
		out.Buy = append(out.Buy, old.Buy...)
		out.Sell = append(out.Sell, old.Sell...)
	}
	if msg.Side == SideBuy {
		out.Buy = append([]Advertise{msg}, out.Buy...)
	} else {
		out.Sell = append([]Advertise{msg}, out.Sell...)
	}
	return out
}

// MergeSymbolData 浅合并：update 中的字段覆盖 old，old 为 nil 时直接返回 update 的拷贝
func MergeSymbolData(old, update SymbolData) SymbolData {
	out := make(SymbolData, len(old)+len(update))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}
