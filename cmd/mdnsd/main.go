// Package main 提供 mdnsd 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	mdns "github.com/dep2p/go-mdns"
	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/pkg/lib/log"
)

var logger = log.Logger("mdns/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行要发布什么、浏览什么
//   JSON 配置文件：引擎与收发的固定配置
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile = flag.String("config", "", "配置文件路径")
	ifaces     = flag.String("iface", "", "参与收发的网卡，逗号分隔（默认全部）")
	introspect = flag.String("introspect", "", "自省 HTTP 地址，如 127.0.0.1:6060")

	// ─────────────────────────────────────────────────────────────────────
	// 发布
	// ─────────────────────────────────────────────────────────────────────
	host    = flag.String("host", "", "发布的主机名，如 box.local.")
	addrs   = flag.String("addr", "", "主机地址，逗号分隔，每个地址族一个")
	svcType = flag.String("service", "", "发布的服务类型，如 _http._tcp")
	name    = flag.String("name", "", "服务实例名（默认使用主机名首标签）")
	port    = flag.Uint("port", 0, "服务端口")
	txt     = flag.String("txt", "", "TXT 条目，逗号分隔")

	// ─────────────────────────────────────────────────────────────────────
	// 浏览与解析
	// ─────────────────────────────────────────────────────────────────────
	browse  = flag.String("browse", "", "浏览的服务类型，如 _ipp._tcp")
	resolve = flag.String("resolve", "", "解析的实例完整域名")

	// ─────────────────────────────────────────────────────────────────────
	// 日志与信息
	// ─────────────────────────────────────────────────────────────────────
	logFile     = flag.String("log", "", "日志文件路径（覆盖配置文件）")
	verbose     = flag.Bool("v", false, "输出 Fx 组装日志")
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(mdns.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	log.Configure(cfg.Log.Level, cfg.Log.Format)
	closeLog, err := setupLogFile(cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v，日志输出到控制台\n", err)
	}
	defer closeLog()

	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("启动 mdnsd", "version", mdns.Version, "commit", mdns.GitCommit)
	r, err := mdns.New(opts...)
	if err != nil {
		return fmt.Errorf("创建应答器失败: %w", err)
	}
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("关闭应答器失败", "err", err)
		}
	}()

	if err := publish(r); err != nil {
		return err
	}
	if err := watch(ctx, r); err != nil {
		return err
	}

	fmt.Println("mdnsd 已启动，按 Ctrl+C 退出")
	<-ctx.Done()
	fmt.Println("\n正在关闭...")
	return nil
}

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}
	if *ifaces != "" {
		cfg.Transport.Interfaces = splitList(*ifaces)
	}
	if *introspect != "" {
		cfg.Introspect.Enabled = true
		cfg.Introspect.Addr = *introspect
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	return cfg, cfg.Validate()
}

func buildOptions(cfg *config.Config) ([]mdns.Option, error) {
	opts := []mdns.Option{mdns.WithConfig(cfg)}
	if *verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("创建 Fx 日志失败: %w", err)
		}
		opts = append(opts, mdns.WithFxLogger(zl))
	}
	return opts, nil
}

// setupLogFile 把日志重定向到文件，返回关闭函数
func setupLogFile(path string) (func(), error) {
	noop := func() {}
	if path == "" {
		return noop, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return noop, fmt.Errorf("创建日志目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // 用户指定的日志路径
	if err != nil {
		return noop, fmt.Errorf("打开日志文件失败: %w", err)
	}
	log.SetOutput(file)
	return func() { _ = file.Close() }, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 发布与浏览
// ═══════════════════════════════════════════════════════════════════════════

func publish(r *mdns.Responder) error {
	if *host != "" && *addrs != "" {
		var list []netip.Addr
		for _, s := range splitList(*addrs) {
			a, err := netip.ParseAddr(s)
			if err != nil {
				return fmt.Errorf("地址无效 %q: %w", s, err)
			}
			list = append(list, a)
		}
		h, err := r.PublishHost(*host, list...)
		if err != nil {
			return fmt.Errorf("发布主机失败: %w", err)
		}
		go func() {
			for ev := range h.Events() {
				fmt.Printf("[host] %s %s\n", ev.Status, ev.Record)
			}
		}()
	}

	if *svcType == "" {
		return nil
	}
	if *host == "" || *port == 0 || *port > 65535 {
		return fmt.Errorf("发布服务需要 -host 与有效的 -port")
	}
	instance := *name
	if instance == "" {
		instance = strings.SplitN(strings.TrimSuffix(*host, "."), ".", 2)[0]
	}
	reg, err := r.Register(mdns.Service{
		Name:    instance,
		Service: *svcType,
		Host:    *host,
		Port:    uint16(*port),
		Text:    splitList(*txt),
	})
	if err != nil {
		return fmt.Errorf("注册服务失败: %w", err)
	}
	go func() {
		for ev := range reg.Events() {
			if ev.Previous != "" {
				fmt.Printf("[service] %s %q (原名 %q)\n", ev.Status, ev.Name, ev.Previous)
				continue
			}
			fmt.Printf("[service] %s %q\n", ev.Status, ev.Name)
		}
	}()
	return nil
}

func watch(ctx context.Context, r *mdns.Responder) error {
	if *browse != "" {
		events, err := r.Browse(ctx, *browse)
		if err != nil {
			return fmt.Errorf("浏览失败: %w", err)
		}
		go func() {
			for ev := range events {
				op := "-"
				if ev.Added {
					op = "+"
				}
				fmt.Printf("[browse] %s %q %s on %s\n", op, ev.Name, ev.Instance, ev.Interface)
			}
		}()
	}
	if *resolve != "" {
		results, err := r.Resolve(ctx, *resolve)
		if err != nil {
			return fmt.Errorf("解析失败: %w", err)
		}
		go func() {
			for res := range results {
				fmt.Printf("[resolve] %s -> %s:%d %v txt=%q\n", res.Instance, res.Host, res.Port, res.Addrs, res.Text)
			}
		}()
	}
	return nil
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
