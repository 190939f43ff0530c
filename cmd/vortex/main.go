package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jackpal/gateway"
	"github.com/mdp/qrterminal/v3"

	"vortex/internal/config"
	"vortex/internal/httpserver"
	"vortex/internal/ratelimit"
	"vortex/internal/secure"
)

const pidFile = "vortex.pid"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "stop":
			stopCmd(os.Args[2:])
			return
		case "token":
			tokenCmd(os.Args[2:])
			return
		}
	}

	var (
		dir      = flag.String("dir", ".", "directory to share")
		addr     = flag.String("addr", "", "listen address (default 0.0.0.0:8000)")
		auth     = flag.Bool("auth", false, "require the access token on every request")
		https    = flag.Bool("https", false, "serve over TLS with a self-signed certificate")
		limit    = flag.Int("limit", 0, "requests per minute per address (default 200)")
		maxConns = flag.Int("max-conns", 0, "concurrent connection cap (default 100)")
		stateDir = flag.String("state", "", "state dir for token/cert/thumbs (default ~/.vortex)")
		cfgPath  = flag.String("config", "", "path to config json (optional)")
		noQR     = flag.Bool("no-qr", false, "skip the QR code banner")
	)
	flag.Parse()

	var cfg config.Config
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfg.Root = *dir
		cfg.EnableAuth = *auth
		cfg.EnableTLS = *https
		cfg.RateLimit = *limit
		cfg.MaxConns = *maxConns
		cfg.StateDir = *stateDir
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.Normalize(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		log.Fatalf("mkdir state: %v", err)
	}

	if err := writePIDFile(cfg.StateDir); err != nil {
		log.Fatalf("pid file: %v", err)
	}
	defer os.Remove(filepath.Join(cfg.StateDir, pidFile))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tokens := secure.NewTokenStore(cfg.StateDir)
	var token string
	if cfg.EnableAuth {
		var err error
		token, err = tokens.Load()
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		go func() {
			if err := tokens.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[AUTH] token watch stopped: %v", err)
			}
		}()
	}

	lanIP := localIP()

	var cert *tls.Certificate
	if cfg.EnableTLS {
		c, err := secure.NewCertStore(cfg.StateDir, lanIP).Load()
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
		cert = &c
	}

	limiter := ratelimit.New(cfg.RateLimit, ratelimit.DefaultWindow)
	go limiter.SweepLoop(ctx.Done(), ratelimit.DefaultWindow)

	srv, err := httpserver.New(httpserver.Options{
		Config:     cfg,
		Tokens:     tokens,
		Limiter:    limiter,
		Middleware: outerMiddleware,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}

	banner(cfg, lanIP, token, !*noQR)
	if err := srv.ListenAndServe(ctx, cert); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Printf("vortex stopped")
}

// outerMiddleware layers access logging and hardening headers outside the
// request pipeline.
func outerMiddleware(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(os.Stdout, secure.Headers(next), accessLog)
}

func accessLog(w io.Writer, params handlers.LogFormatterParams) {
	ip, _, err := net.SplitHostPort(params.Request.RemoteAddr)
	if err != nil {
		ip = params.Request.RemoteAddr
	}
	fmt.Fprintf(w, "%s %s %s %q %d %d\n",
		params.TimeStamp.Format("2006-01-02 15:04:05.000"),
		ip,
		params.Request.Method,
		params.URL.Path,
		params.StatusCode,
		params.Size,
	)
}

func banner(cfg config.Config, lanIP, token string, qr bool) {
	scheme := "http"
	if cfg.EnableTLS {
		scheme = "https"
	}
	_, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		port = "8000"
	}
	shareURL := fmt.Sprintf("%s://%s:%s/", scheme, lanIP, port)

	log.Printf("vortex listening on %s (root=%s)", cfg.Addr, cfg.Root)
	log.Printf("share url: %s", shareURL)
	if cfg.EnableTLS {
		log.Printf("certificate is self-signed; browsers will warn once")
	}
	if token != "" {
		log.Printf("access token: %s (header X-Token or ?token=)", token)
		shareURL += "?token=" + token
	}
	if qr {
		qrterminal.GenerateWithConfig(shareURL, qrterminal.Config{
			Level:      qrterminal.L,
			Writer:     os.Stdout,
			HalfBlocks: true,
			QuietZone:  1,
		})
	}
}

// localIP finds the address other devices on the LAN can reach. The
// gateway-facing interface is the best answer; a private-range interface
// scan covers hosts without a default route.
func localIP() string {
	if gw, err := gateway.DiscoverGateway(); err == nil {
		if ip := interfaceIPFor(gw); ip != "" {
			return ip
		}
	}
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			for _, addr := range addrs {
				if ipnet, ok := addr.(*net.IPNet); ok {
					if v4 := ipnet.IP.To4(); v4 != nil && v4.IsPrivate() {
						return v4.String()
					}
				}
			}
		}
	}
	return "127.0.0.1"
}

func interfaceIPFor(gw net.IP) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.Contains(gw) {
				if v4 := ipnet.IP.To4(); v4 != nil {
					return v4.String()
				}
			}
		}
	}
	return ""
}

func writePIDFile(stateDir string) error {
	p := filepath.Join(stateDir, pidFile)
	if b, err := os.ReadFile(p); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(b))); perr == nil && processAlive(pid) {
			return fmt.Errorf("already running as pid %d (use 'vortex stop')", pid)
		}
	}
	return os.WriteFile(p, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func stopCmd(args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	stateDir := fs.String("state", "", "state dir (default ~/.vortex)")
	_ = fs.Parse(args)

	dir := *stateDir
	if dir == "" {
		dir = config.DefaultStateDir()
	}
	p := filepath.Join(dir, pidFile)
	b, err := os.ReadFile(p)
	if err != nil {
		log.Fatalf("no running server found (%v)", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		log.Fatalf("pid file %s is corrupt", p)
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.SIGTERM)
	}
	if err != nil {
		log.Fatalf("signal pid %d: %v", pid, err)
	}
	// Give the server a moment to shut down and remove its own pid file.
	for i := 0; i < 20; i++ {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = os.Remove(p)
	fmt.Printf("stopped vortex (pid %d)\n", pid)
}

func tokenCmd(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	var (
		stateDir = fs.String("state", "", "state dir (default ~/.vortex)")
		regen    = fs.Bool("regen", false, "replace the current token")
	)
	_ = fs.Parse(args)

	dir := *stateDir
	if dir == "" {
		dir = config.DefaultStateDir()
	}
	store := secure.NewTokenStore(dir)
	tok, err := store.Load()
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	if *regen {
		tok, err = store.Regenerate()
		if err != nil {
			log.Fatalf("regenerate: %v", err)
		}
	}
	fmt.Println(tok)
}
