package realtime

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"mktstream/internal/application/port"
	"mktstream/internal/domain/channel"
	"mktstream/internal/domain/model"
)

// SymbolRequest 个股订阅请求，展开为 Symbols x Types 的笛卡尔积
type SymbolRequest struct {
	Symbols []string
	Types   []channel.DataKind
}

type symbolChannel struct {
	name string
	kind channel.DataKind
}

// expand 跳过空代码，保持顺序；订阅与退订使用相同的展开
func (req SymbolRequest) expand() []symbolChannel {
	out := make([]symbolChannel, 0, len(req.Symbols)*len(req.Types))
	for _, s := range req.Symbols {
		if strings.TrimSpace(s) == "" {
			continue
		}
		for _, k := range req.Types {
			out = append(out, symbolChannel{name: channel.ForSymbol(s, k), kind: k})
		}
	}
	return out
}

// Facade 面向业务的订阅接口。
// 每个被引用的频道绑定一个默认回调（按频道名缓存，引用归零时删除），把推送合并进 Cache；
// 订阅/退订必须由调用方以对称的参数成对调用
type Facade struct {
	registry *Registry
	cache    port.Cache

	mu       sync.Mutex
	defaults map[string]*Callback
}

// NewFacade 创建订阅门面
func NewFacade(registry *Registry, cache port.Cache) *Facade {
	return &Facade{
		registry: registry,
		cache:    cache,
		defaults: make(map[string]*Callback),
	}
}

// SubscribeMarketStatus 订阅全市场状态
func (f *Facade) SubscribeMarketStatus() {
	f.acquire(channel.MarketStatus, f.onMarketStatus)
}

func (f *Facade) UnsubscribeMarketStatus() {
	f.release(channel.MarketStatus)
}

// SubscribeNotice 订阅某市场的协议成交通知
func (f *Facade) SubscribeNotice(market channel.Market) {
	f.acquire(channel.ForMarket(market, channel.TopicDealNotice), f.onDealNotice(market))
}

func (f *Facade) UnsubscribeNotice(market channel.Market) {
	f.release(channel.ForMarket(market, channel.TopicDealNotice))
}

// SubscribeAdvertise 订阅某市场的协议广告单
func (f *Facade) SubscribeAdvertise(market channel.Market) {
	f.acquire(channel.ForMarket(market, channel.TopicAdvertise), f.onAdvertise(market))
}

func (f *Facade) UnsubscribeAdvertise(market channel.Market) {
	f.release(channel.ForMarket(market, channel.TopicAdvertise))
}

// SubscribeSymbols 订阅个股行情，每个 (symbol, type) 一次 Acquire
func (f *Facade) SubscribeSymbols(req SymbolRequest) {
	for _, sc := range req.expand() {
		f.acquire(sc.name, f.onSymbol(sc.kind))
	}
}

// UnsubscribeSymbols 与 SubscribeSymbols 对称
func (f *Facade) UnsubscribeSymbols(req SymbolRequest) {
	for _, sc := range req.expand() {
		f.release(sc.name)
	}
}

// WatchMarketStatus 作用域版本的 SubscribeMarketStatus
func (f *Facade) WatchMarketStatus() *Lease {
	f.SubscribeMarketStatus()
	return newLease(f.UnsubscribeMarketStatus)
}

// WatchNotice 作用域版本的 SubscribeNotice
func (f *Facade) WatchNotice(market channel.Market) *Lease {
	f.SubscribeNotice(market)
	return newLease(func() { f.UnsubscribeNotice(market) })
}

// WatchAdvertise 作用域版本的 SubscribeAdvertise
func (f *Facade) WatchAdvertise(market channel.Market) *Lease {
	f.SubscribeAdvertise(market)
	return newLease(func() { f.UnsubscribeAdvertise(market) })
}

// WatchSymbols 作用域版本的 SubscribeSymbols，释放时使用同一份展开
func (f *Facade) WatchSymbols(req SymbolRequest) *Lease {
	req = SymbolRequest{
		Symbols: append([]string(nil), req.Symbols...),
		Types:   append([]channel.DataKind(nil), req.Types...),
	}
	f.SubscribeSymbols(req)
	return newLease(func() { f.UnsubscribeSymbols(req) })
}

// acquire 每个频道在被引用期间只有一个默认回调。
// 查找与 Acquire 在同一把锁内完成，避免与 release 的清理交错
func (f *Facade) acquire(name string, fn func(port.Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cb, ok := f.defaults[name]
	if !ok {
		cb = NewCallback(fn)
		f.defaults[name] = cb
	}
	f.registry.Acquire(name, cb)
}

// release 频道不再被引用时丢弃其默认回调
func (f *Facade) release(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registry.Release(name, nil)
	if f.registry.Refs(name) == 0 {
		delete(f.defaults, name)
	}
}

func (f *Facade) onMarketStatus(msg port.Message) {
	var data model.MarketStatus
	if !decode(msg, &data) {
		return
	}
	f.cache.Set(model.MarketStatusKey(), func(old any) any {
		list, _ := old.([]model.MarketStatus)
		return model.MergeMarketStatus(list, data)
	})
}

func (f *Facade) onDealNotice(market channel.Market) func(port.Message) {
	key := model.DealNoticeKey(string(market))
	return func(msg port.Message) {
		var data model.DealNotice
		if !decode(msg, &data) {
			return
		}
		f.cache.Set(key, func(old any) any {
			var prev *model.DealNoticeData
			if d, ok := old.(model.DealNoticeData); ok {
				prev = &d
			}
			return model.ApplyDealNotice(prev, data)
		})
	}
}

func (f *Facade) onAdvertise(market channel.Market) func(port.Message) {
	key := model.AdvertiseKey(string(market))
	return func(msg port.Message) {
		var data model.Advertise
		if !decode(msg, &data) {
			return
		}
		f.cache.Set(key, func(old any) any {
			var prev *model.AdvertiseData
			if d, ok := old.(model.AdvertiseData); ok {
				prev = &d
			}
			return model.ApplyAdvertise(prev, data)
		})
	}
}

func (f *Facade) onSymbol(kind channel.DataKind) func(port.Message) {
	return func(msg port.Message) {
		var data model.SymbolData
		if !decode(msg, &data) {
			return
		}
		symbol := data.Symbol()
		if symbol == "" {
			log.Warn().Str("channel", msg.Channel).Msg("symbol payload without code, dropped")
			return
		}
		data["channelType"] = string(kind)
		f.cache.Set(model.StockKey(symbol), func(old any) any {
			prev, _ := old.(model.SymbolData)
			return model.MergeSymbolData(prev, data)
		})
	}
}

func decode(msg port.Message, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("payload decode failed")
		return false
	}
	return true
}
