package svc

import "errors"

// ErrNoSubscriptions 错误：配置中没有任何订阅
var ErrNoSubscriptions = errors.New("no subscriptions configured")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrFeedNotReady 错误：在等待时间内未能建立行情连接
var ErrFeedNotReady = errors.New("feed not ready")
