package port

// Updater 根据旧值计算新值，键不存在时 old 为 nil
type Updater func(old any) any

// Cache 订阅回调写入的键值缓存，同一个键按最后写入为准
type Cache interface {
	Set(key string, update Updater)
	Get(key string) (any, bool)
}
