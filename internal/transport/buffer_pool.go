package transport

import (
	"sync"

	"github.com/joshuafuller/ssdp/internal/protocol"
)

// bufferPool holds receive buffers sized for the largest datagram the
// library accepts.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, protocol.MaxDatagramSize)
		return &buf
	},
}

// GetBuffer returns a receive buffer from the pool.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns buf to the pool.
func PutBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}
