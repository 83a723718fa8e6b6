package octosite

import (
	"io"
	"net/http"
)

// SendString writes a plain text response.
func (c *Ctx[V]) SendString(statusCode int, body string) {
	c.SendData(statusCode, ContentTypePlain, []byte(body))
}

func (c *Ctx[V]) SendData(statusCode int, contentType string, data []byte) {
	c.SetHeader(HeaderContentType, contentType)
	c.SetStatus(statusCode)
	if c.Request.Method == http.MethodHead {
		return
	}
	c.ResponseWriter.Write(data)
}

// SendStream copies header and body to the client with the given status.
// Headers already set on the writer are kept unless header overrides them.
func (c *Ctx[V]) SendStream(statusCode int, header http.Header, body io.Reader) error {
	dst := c.ResponseWriter.Header()
	for name, values := range header {
		dst[name] = append([]string(nil), values...)
	}
	c.SetStatus(statusCode)
	if body == nil || c.Request.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(c.ResponseWriter, body); err != nil {
		// The status line is gone; nothing useful can reach the client.
		LogErrorWithPath(logger, err, c.Request.URL.Path)
	}
	return nil
}

func (c *Ctx[V]) Redirect(status int, url string) {
	c.SetHeader(HeaderLocation, url)
	c.SetStatus(status)
}
