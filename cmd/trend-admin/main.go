package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"shoptrend/internal/adminclient"
	"shoptrend/internal/config"
)

const Prompt = "trend> "

// App 应用程序主结构
type App struct {
	client   *adminclient.Client
	registry *adminclient.CommandRegistry
}

// NewApp 创建新的应用程序实例
func NewApp(serverURL string) *App {
	app := &App{
		client:   adminclient.NewClient(serverURL, os.Stdout),
		registry: adminclient.NewCommandRegistry(),
	}
	app.registerCommands()
	return app
}

// registerCommands 注册所有命令
func (a *App) registerCommands() {
	commands := adminclient.AdminCommands(a.client)
	commands = append(commands,
		adminclient.NewHelpCommand(a.registry, os.Stdout),
		adminclient.NewExitCommand(),
	)
	for _, cmd := range commands {
		if err := a.registry.Register(cmd); err != nil {
			fmt.Printf("警告: 注册 %s 命令失败: %v\n", cmd.Name(), err)
		}
	}
}

// parseCommand 解析命令行输入
func parseCommand(line string) (string, []string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToLower(parts[0]), parts[1:]
}

// runInteractive 运行交互式模式
func (a *App) runInteractive() {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Printf("trend-admin - 连接到 %s\n", a.client.GetServerURL())
	fmt.Println("输入 'help' 查看帮助，输入 'exit' 或 'quit' 退出")
	fmt.Println()

	ctx := context.Background()

	for {
		fmt.Print(Prompt)

		if !scanner.Scan() {
			break
		}

		commandName, args := parseCommand(scanner.Text())
		if commandName == "" {
			continue
		}

		cmd, ok := a.registry.Get(commandName)
		if !ok {
			fmt.Printf("未知命令: %s\n", commandName)
			fmt.Println("输入 'help' 查看帮助")
			continue
		}

		if err := cmd.Execute(ctx, args); err != nil {
			if errors.Is(err, adminclient.ErrExit) {
				fmt.Println("再见!")
				return
			}
			fmt.Printf("错误: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("读取输入时出错: %v\n", err)
	}
}

// runCommand 运行单个命令（非交互式模式）
func (a *App) runCommand(commandName string, args []string) error {
	cmd, ok := a.registry.Get(commandName)
	if !ok {
		return fmt.Errorf("未知命令: %s\n输入 'trend-admin help' 查看帮助", commandName)
	}
	err := cmd.Execute(context.Background(), args)
	if errors.Is(err, adminclient.ErrExit) {
		return nil
	}
	return err
}

// getServerURL 获取服务器 URL：环境变量优先，其次配置文件
func getServerURL() string {
	if serverURL := os.Getenv("TREND_ADMIN_URL"); serverURL != "" {
		return serverURL
	}

	cfg, err := config.Load(os.Getenv("SHOPTREND_CONFIG_PATH"))
	if err == nil && cfg.Server.Enabled {
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}

	return adminclient.DefaultServerURL
}

func main() {
	app := NewApp(getServerURL())

	if len(os.Args) > 1 {
		if err := app.runCommand(strings.ToLower(os.Args[1]), os.Args[2:]); err != nil {
			fmt.Printf("错误: %v\n", err)
			os.Exit(1)
		}
		return
	}

	app.runInteractive()
}
