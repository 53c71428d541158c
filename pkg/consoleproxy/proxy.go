// Package consoleproxy 把桌面虚拟机的远程控制台通过 WebSocket 转发给浏览器
package consoleproxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DialTimeout 连接控制台端点的超时
const DialTimeout = 10 * time.Second

// Proxy 控制台 WebSocket 代理
// 在 WebSocket 连接和虚拟机控制台的 TCP 端点之间双向转发二进制数据
type Proxy struct {
	consoleAddr string
	wsConn      *websocket.Conn
	tcpConn     net.Conn
	mu          sync.Mutex
	closed      bool
}

// New 创建控制台代理
// consoleAddr 是虚拟机控制台的 host:port
func New(consoleAddr string, wsConn *websocket.Conn) *Proxy {
	return &Proxy{
		consoleAddr: consoleAddr,
		wsConn:      wsConn,
	}
}

// Start 启动代理，阻塞直到任一方向断开
func (p *Proxy) Start(ctx context.Context) error {
	conn, err := net.DialTimeout("tcp", p.consoleAddr, DialTimeout)
	if err != nil {
		return fmt.Errorf("connect to console %s: %w", p.consoleAddr, err)
	}
	p.tcpConn = conn

	logger := zerolog.Ctx(ctx)
	logger.Info().
		Str("console_addr", p.consoleAddr).
		Msg("Console proxy connected")

	var wg sync.WaitGroup
	wg.Add(2)

	// 控制台 -> WebSocket
	go func() {
		defer wg.Done()
		p.forwardConsoleToWS(logger)
	}()

	// WebSocket -> 控制台
	go func() {
		defer wg.Done()
		p.forwardWSToConsole(logger)
	}()

	wg.Wait()
	return nil
}

// forwardConsoleToWS 将控制台数据转发到 WebSocket
func (p *Proxy) forwardConsoleToWS(logger *zerolog.Logger) {
	defer p.Close()

	buffer := make([]byte, 32768)
	for {
		n, err := p.tcpConn.Read(buffer)
		if err != nil {
			if err != io.EOF {
				logger.Debug().Err(err).Msg("Error reading from console")
			}
			return
		}

		if n > 0 {
			p.mu.Lock()
			if !p.closed {
				err = p.wsConn.WriteMessage(websocket.BinaryMessage, buffer[:n])
				if err != nil {
					logger.Debug().Err(err).Msg("Error writing to WebSocket")
					p.mu.Unlock()
					return
				}
			}
			p.mu.Unlock()
		}
	}
}

// forwardWSToConsole 将 WebSocket 数据转发到控制台
func (p *Proxy) forwardWSToConsole(logger *zerolog.Logger) {
	defer p.Close()

	for {
		messageType, data, err := p.wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		// 只处理二进制消息
		if messageType == websocket.BinaryMessage {
			_, err = p.tcpConn.Write(data)
			if err != nil {
				logger.Debug().Err(err).Msg("Error writing to console")
				return
			}
		}
	}
}

// Close 关闭代理连接
func (p *Proxy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.tcpConn != nil {
		p.tcpConn.Close()
	}
	if p.wsConn != nil {
		p.wsConn.Close()
	}
}
