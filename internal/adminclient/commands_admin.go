package adminclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RequestCommand 将命令参数转换为一次管理接口调用
type RequestCommand struct {
	name        string
	aliases     []string
	description string
	usage       string
	build       func(args []string) (Request, error)
	client      *Client
}

func (c *RequestCommand) Name() string        { return c.name }
func (c *RequestCommand) Aliases() []string   { return c.aliases }
func (c *RequestCommand) Description() string { return c.description }
func (c *RequestCommand) Usage() string       { return c.usage }

// Execute 执行命令
func (c *RequestCommand) Execute(ctx context.Context, args []string) error {
	req, err := c.build(args)
	if err != nil {
		return fmt.Errorf("%w\n用法: %s", err, c.usage)
	}
	return c.client.Do(ctx, req)
}

// AdminCommands 返回所有管理接口命令
func AdminCommands(client *Client) []Command {
	return []Command{
		&RequestCommand{
			name: "snapshot", aliases: []string{"stats"},
			description: "查看监控计数器快照",
			usage:       "snapshot",
			build:       fixed(http.MethodGet, "/api/v1/monitoring/snapshot"),
			client:      client,
		},
		&RequestCommand{
			name:        "health",
			description: "按阈值检查服务健康状态",
			usage:       "health",
			build:       fixed(http.MethodGet, "/api/v1/monitoring/health"),
			client:      client,
		},
		&RequestCommand{
			name:        "reset",
			description: "重置监控计数器",
			usage:       "reset",
			build:       fixed(http.MethodPost, "/api/v1/monitoring/reset"),
			client:      client,
		},
		&RequestCommand{
			name: "run", aliases: []string{"aggregate"},
			description: "立即聚合指定关键词",
			usage:       "run <daily|weekly|monthly> <keyword>[,<keyword>...] [as_of]\n  示例: run weekly shoes,bags 2024-05-14",
			build: func(args []string) (Request, error) {
				if len(args) < 2 {
					return Request{}, fmt.Errorf("缺少参数")
				}
				body := map[string]interface{}{"keywords": splitList(args[1])}
				if len(args) > 2 {
					body["as_of"] = args[2]
				}
				return Request{
					Method:   http.MethodPost,
					Endpoint: "/api/v1/aggregations/" + url.PathEscape(strings.ToLower(args[0])) + "/run",
					Body:     body,
				}, nil
			},
			client: client,
		},
		&RequestCommand{
			name: "trends", aliases: []string{"trend"},
			description: "查询关键词的聚合结果",
			usage:       "trends <keyword> [type] [from] [to]",
			build: func(args []string) (Request, error) {
				if len(args) < 1 {
					return Request{}, fmt.Errorf("缺少关键词")
				}
				query := map[string]string{"keyword": args[0]}
				for i, key := range []string{"type", "from", "to"} {
					if len(args) > i+1 {
						query[key] = args[i+1]
					}
				}
				return Request{Method: http.MethodGet, Endpoint: "/api/v1/trends", Query: query}, nil
			},
			client: client,
		},
		&RequestCommand{
			name: "invalidate", aliases: []string{"evict"},
			description: "按范围清除缓存",
			usage:       "invalidate <all|keyword|type> [value]",
			build: func(args []string) (Request, error) {
				query := map[string]string{"scope": "all"}
				if len(args) > 0 {
					query["scope"] = args[0]
				}
				if len(args) > 1 {
					query["value"] = args[1]
				}
				return Request{Method: http.MethodDelete, Endpoint: "/api/v1/cache", Query: query}, nil
			},
			client: client,
		},
		&RequestCommand{
			name:        "price",
			description: "记录一次商品价格观测",
			usage:       "price <product_id> <price>",
			build: func(args []string) (Request, error) {
				if len(args) < 2 {
					return Request{}, fmt.Errorf("缺少参数")
				}
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return Request{}, fmt.Errorf("无效的商品 ID: %s", args[0])
				}
				return Request{
					Method:   http.MethodPost,
					Endpoint: "/api/v1/prices",
					Body:     map[string]interface{}{"product_id": id, "price": args[1]},
				}, nil
			},
			client: client,
		},
		&RequestCommand{
			name:        "history",
			description: "查看商品价格历史",
			usage:       "history <product_id> [limit]",
			build: func(args []string) (Request, error) {
				if len(args) < 1 {
					return Request{}, fmt.Errorf("缺少商品 ID")
				}
				req := Request{Method: http.MethodGet, Endpoint: "/api/v1/prices/" + url.PathEscape(args[0])}
				if len(args) > 1 {
					req.Query = map[string]string{"limit": args[1]}
				}
				return req, nil
			},
			client: client,
		},
		&RequestCommand{
			name:        "click",
			description: "记录关键词点击",
			usage:       "click <keyword> [count] [date]",
			build: func(args []string) (Request, error) {
				if len(args) < 1 {
					return Request{}, fmt.Errorf("缺少关键词")
				}
				body := map[string]interface{}{"keyword": args[0]}
				if len(args) > 1 {
					n, err := strconv.ParseInt(args[1], 10, 64)
					if err != nil {
						return Request{}, fmt.Errorf("无效的点击数: %s", args[1])
					}
					body["count"] = n
				}
				if len(args) > 2 {
					body["date"] = args[2]
				}
				return Request{Method: http.MethodPost, Endpoint: "/api/v1/clicks", Body: body}, nil
			},
			client: client,
		},
		&RequestCommand{
			name:        "call",
			description: "查看外部调用记录",
			usage:       "call <id>",
			build: func(args []string) (Request, error) {
				if len(args) < 1 {
					return Request{}, fmt.Errorf("缺少调用 ID")
				}
				return Request{Method: http.MethodGet, Endpoint: "/api/v1/calls/" + url.PathEscape(args[0])}, nil
			},
			client: client,
		},
		&RequestCommand{
			name:        "tasks",
			description: "查看定时任务状态",
			usage:       "tasks",
			build:       fixed(http.MethodGet, "/api/v1/tasks"),
			client:      client,
		},
		&RequestCommand{
			name:        "task-run",
			description: "立即执行定时任务",
			usage:       "task-run <name>",
			build: func(args []string) (Request, error) {
				if len(args) < 1 {
					return Request{}, fmt.Errorf("缺少任务名称")
				}
				return Request{Method: http.MethodPost, Endpoint: "/api/v1/tasks/" + url.PathEscape(args[0]) + "/run"}, nil
			},
			client: client,
		},
	}
}

func fixed(method, endpoint string) func([]string) (Request, error) {
	return func([]string) (Request, error) {
		return Request{Method: method, Endpoint: endpoint}, nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
