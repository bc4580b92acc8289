// api/middleware/logger.go
package middleware

import (
	"bytes"
	"time"

	"github.com/gin-gonic/gin"

	"smppgw/pkg/logger"
)

// 错误响应最多记录的字节数
const maxLoggedBody = 512

// Logger 请求日志中间件，4xx/5xx时附带响应体
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		bodyWriter := &bodyWriterWrapper{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = bodyWriter

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		if status >= 400 {
			body := bodyWriter.body.Bytes()
			if len(body) > maxLoggedBody {
				body = body[:maxLoggedBody]
			}
			log.Warning("%s %s %d %v %s user=%q body=%s",
				c.Request.Method, path, status, latency, c.ClientIP(), c.GetString(ContextUsername), body)
			return
		}
		log.Info("%s %s %d %v %s", c.Request.Method, path, status, latency, c.ClientIP())
	}
}

// 响应体包装器，用于捕获响应体
type bodyWriterWrapper struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyWriterWrapper) Write(b []byte) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriterWrapper) WriteString(s string) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}
