// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrInvalidURL はURLとして解釈できないか、スキームやホストが不正な場合のエラー。
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlockedDestination はプライベートネットワーク等への接続先を拒否した場合のエラー。
	ErrBlockedDestination = errors.New("blocked destination")
	// ErrResponseTooLarge はレスポンスボディが上限を超えた場合のエラー。
	ErrResponseTooLarge = errors.New("response body too large")
)

// URLValidator は外部URLへ接続する前の静的検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// allowedSchemes は外部接続で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は外部接続でブロックされるネットワーク範囲。
// 名前解決後のIPアドレスはsafeurlのDialer側で検証される。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// キャリアグレードNAT (RFC 6598)
		"100.64.0.0/10",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// Guard はフィード取得と画像プローブで共有する外部接続ガード。
type Guard struct{}

// NewGuard は新しいGuardを生成する。
func NewGuard() *Guard {
	return &Guard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlが名前解決後の接続先IPを検証し、http/httpsの80/443番ポート以外を拒否する。
// maxResponseSizeが正の場合、ボディを読み進めて上限を超えた時点でErrResponseTooLargeを返す。
func (g *Guard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	client.Transport = LimitResponses(client.Transport, maxResponseSize)
	return client
}

// ValidateURL は接続前にURLを静的に検証する。
// 返すエラーはErrInvalidURLまたはErrBlockedDestinationをラップする。
func (g *Guard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("%w: disallowed scheme %q", ErrInvalidURL, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedDestination, ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("%w: %s", ErrBlockedDestination, host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	return lower == "localhost" || strings.HasSuffix(lower, ".localhost")
}

// LimitResponses はレスポンスボディをmaxBytesまでに制限するRoundTripperを返す。
// maxBytesが0以下の場合はbaseをそのまま返す。
func LimitResponses(base http.RoundTripper, maxBytes int64) http.RoundTripper {
	if maxBytes <= 0 {
		return base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &limitedTransport{base: base, max: maxBytes}
}

type limitedTransport struct {
	base http.RoundTripper
	max  int64
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength > t.max {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content-length %d exceeds %d", ErrResponseTooLarge, resp.ContentLength, t.max)
	}
	resp.Body = &limitedBody{rc: resp.Body, remaining: t.max}
	return resp, nil
}

// limitedBody は上限を1バイトでも超えた読み出しでErrResponseTooLargeを返す。
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrResponseTooLarge
	}
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n + int(b.remaining), ErrResponseTooLarge
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}
