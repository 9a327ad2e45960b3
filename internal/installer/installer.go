// Package installer replaces the server jar with a freshly downloaded one.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/craftvisor/internal/events"
	"github.com/loykin/craftvisor/internal/history"
	"github.com/loykin/craftvisor/internal/metrics"
)

var (
	ErrInvalidFilename = errors.New("installer: filename is empty after sanitizing")
	ErrInvalidURL      = errors.New("installer: url must be absolute http or https")
	ErrServerRunning   = errors.New("installer: stop the server before installing")
)

// DefaultTimeout bounds a whole download.
const DefaultTimeout = 10 * time.Minute

// Server keeps the game server from starting while the jar is replaced.
// HoldOffline fails unless the server is fully stopped.
type Server interface {
	HoldOffline() (release func(), ok bool)
}

type Options struct {
	Dir     string
	Server  Server // nil allows installs at any time
	Bus     events.Publisher
	Logger  *slog.Logger
	History *history.Recorder
	Client  *http.Client
	Timeout time.Duration
}

type Installer struct {
	opts Options
	log  *slog.Logger
	mu   sync.Mutex
}

func New(opts Options) *Installer {
	if opts.Bus == nil {
		opts.Bus = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Installer{opts: opts, log: opts.Logger.With("component", "installer")}
}

// SanitizeFilename keeps only [A-Za-z0-9._-] and drops leading dots, so the
// result can never name a parent directory or a hidden file.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

// Install deletes every jar in the server directory and downloads rawURL as
// filename. A ".jar" suffix is added when missing so the launcher finds it.
// It returns the installed path.
func (i *Installer) Install(ctx context.Context, rawURL, filename string) (string, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return "", ErrInvalidFilename
	}
	if !strings.EqualFold(filepath.Ext(name), ".jar") {
		name += ".jar"
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.opts.Server != nil {
		release, ok := i.opts.Server.HoldOffline()
		if !ok {
			i.notify(events.KindError, "Stop the server before installing a new jar.")
			return "", ErrServerRunning
		}
		defer release()
	}

	target := filepath.Join(i.opts.Dir, name)
	i.notify(events.KindInfo, "Downloading "+name+"...")
	i.log.Info("install started", "url", u.Redacted(), "target", target)

	if err := i.install(ctx, u.String(), target); err != nil {
		metrics.IncInstall(false)
		i.log.Error("install failed", "target", target, "error", err)
		i.notify(events.KindError, "Install failed: "+err.Error())
		i.opts.History.Record(history.Event{Type: history.EventInstall, Detail: "failed " + name + ": " + err.Error()})
		return "", err
	}
	metrics.IncInstall(true)
	i.log.Info("install finished", "target", target)
	i.notify(events.KindSuccess, "Installed "+name+". Start the server to use it.")
	i.opts.History.Record(history.Event{Type: history.EventInstall, Detail: name})
	return target, nil
}

func (i *Installer) install(ctx context.Context, src, target string) error {
	if err := os.MkdirAll(i.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create server dir: %w", err)
	}
	if err := removeJars(i.opts.Dir); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()
	return i.download(ctx, src, target)
}

// removeJars deletes every file the launcher could pick, whatever the case of
// its extension.
func removeJars(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan server dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jar") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove old jar: %w", err)
		}
	}
	return nil
}

// download streams src into target via a .part file renamed on success.
func (i *Installer) download(ctx context.Context, src, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := i.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	part := target + ".part"
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return err
	}
	i.log.Debug("downloaded", "bytes", n)
	return nil
}

func (i *Installer) notify(kind events.Kind, msg string) { events.Notify(i.opts.Bus, kind, msg) }
