package socketcluster

import "errors"

var (
	ErrNotConnected = errors.New("socketcluster: not connected")
	ErrAckTimeout   = errors.New("socketcluster: ack timeout")
	ErrClosed       = errors.New("socketcluster: client closed")
)

// RemoteError 服务端在应答中返回的错误
type RemoteError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return "socketcluster: " + e.Message
	}
	return "socketcluster: " + e.Name + ": " + e.Message
}
