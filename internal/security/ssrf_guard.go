package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL はURLがSSRF防止ポリシーでブロックされたことを表す。
var ErrBlockedURL = errors.New("blocked by SSRF policy")

var (
	avatarSchemes = []string{"http", "https"}
	avatarPorts   = []int{80, 443}
)

// blockedPrefixes はURLにIPアドレスが直接書かれていた場合に拒否する範囲。
// ホスト名で指定された場合の解決後アドレスはsafeurlのDialerが検証する。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドのメタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
}

// SSRFGuard はユーザーが指定したURLへの外向きリクエストを制限する。
// アバター画像のURL指定アップロードで使用する。
type SSRFGuard struct {
	ports []int
}

// NewSSRFGuard はSSRFGuardを生成する。ports を省略した場合は80と443のみ許可する。
func NewSSRFGuard(ports ...int) *SSRFGuard {
	if len(ports) == 0 {
		ports = avatarPorts
	}
	return &SSRFGuard{ports: ports}
}

// NewSafeClient はsafeurlで接続先を検証するHTTPクライアントを返す。
// 検証はDNS解決後に行われるため、DNS再バインディングも防げる。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(avatarSchemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はリクエスト前の静的な検査を行う。
// ポリシー違反は ErrBlockedURL をラップして返し、形式不正とは区別できる。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme %q", u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return errors.New("URL has no host")
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrBlockedURL)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
		if !g.portAllowed(port) {
			return fmt.Errorf("%w: port %d", ErrBlockedURL, port)
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: address %s", ErrBlockedURL, addr)
		}
		return nil
	}

	if _, ok := blockedHosts[host]; ok || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %s", ErrBlockedURL, host)
	}
	return nil
}

func (g *SSRFGuard) portAllowed(port int) bool {
	for _, p := range g.ports {
		if p == port {
			return true
		}
	}
	return false
}

// isBlockedAddr はIPv4射影アドレス(::ffff:127.0.0.1 など)も元のIPv4として判定する。
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
