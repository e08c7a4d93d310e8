package catalog

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetch resolves a catalog source to a local file path. Plain paths and
// file:// URLs are returned as-is; http(s):// and ftp:// sources are
// downloaded into destDir. Government GIS portals still publish cadastral
// layers over FTP, hence the ftp scheme.
func Fetch(ctx context.Context, source, destDir string) (string, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return source, nil
	}

	switch u.Scheme {
	case "file":
		return u.Path, nil
	case "http", "https":
		return fetchHTTP(ctx, source, destDir)
	case "ftp":
		return fetchFTP(ctx, u, destDir)
	default:
		return "", eris.Errorf("catalog: unsupported source scheme %q", u.Scheme)
	}
}

func fetchHTTP(ctx context.Context, rawURL, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "catalog: build download request")
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "catalog: download source")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("catalog: download returned status %d", resp.StatusCode)
	}

	dest := filepath.Join(destDir, filepath.Base(req.URL.Path))
	if err := writeFile(dest, resp.Body); err != nil {
		return "", err
	}

	zap.L().Info("catalog: source downloaded", zap.String("url", rawURL), zap.String("dest", dest))
	return dest, nil
}

func fetchFTP(ctx context.Context, u *url.URL, destDir string) (string, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return "", eris.Wrapf(err, "catalog: ftp dial %s", host)
	}
	defer func() { _ = conn.Quit() }()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return "", eris.Wrap(err, "catalog: ftp login")
	}

	r, err := conn.Retr(u.Path)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: ftp retrieve %s", u.Path)
	}
	defer func() { _ = r.Close() }()

	dest := filepath.Join(destDir, filepath.Base(u.Path))
	if err := writeFile(dest, r); err != nil {
		return "", err
	}

	zap.L().Info("catalog: source downloaded over ftp", zap.String("host", host), zap.String("dest", dest))
	return dest, nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "catalog: create %s", dest)
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrapf(err, "catalog: write %s", dest)
	}
	return nil
}
