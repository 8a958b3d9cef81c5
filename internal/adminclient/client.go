package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultServerURL 管理接口默认地址
const DefaultServerURL = "http://localhost:8080"

// Client 管理接口 HTTP 客户端
type Client struct {
	serverURL string
	http      *resty.Client
	out       io.Writer
}

// NewClient 创建客户端，out 为 nil 时输出到标准输出
func NewClient(serverURL string, out io.Writer) *Client {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if out == nil {
		out = os.Stdout
	}
	return &Client{
		serverURL: serverURL,
		http: resty.New().
			SetBaseURL(serverURL).
			SetTimeout(30*time.Minute). // 手动聚合同步返回
			SetHeader("Accept", "application/json"),
		out: out,
	}
}

// GetServerURL 返回服务器 URL
func (c *Client) GetServerURL() string {
	return c.serverURL
}

// Request 一次管理接口调用
type Request struct {
	Method   string
	Endpoint string
	Query    map[string]string
	Body     interface{}
}

// Do 发送请求并输出格式化的 JSON 响应，非 2xx 返回错误
func (c *Client) Do(ctx context.Context, r Request) error {
	req := c.http.R().SetContext(ctx)
	if len(r.Query) > 0 {
		req.SetQueryParams(r.Query)
	}
	if r.Body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.Body)
	}

	resp, err := req.Execute(r.Method, r.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	body := resp.Body()
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Fprintln(c.out, string(body))
	} else {
		fmt.Fprintln(c.out, pretty.String())
	}

	if resp.IsError() {
		return fmt.Errorf("HTTP error: status code %d", resp.StatusCode())
	}
	return nil
}
