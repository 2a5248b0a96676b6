package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientIP retorna o IP do cliente normalizado.
// Headers de encaminhamento só são considerados quando o engine confia no proxy
// (gin.Engine.SetTrustedProxies); caso contrário vale o endereço da conexão.
func ClientIP(c *gin.Context) (string, error) {
	raw := strings.TrimSpace(c.ClientIP())
	if raw == "" {
		return "", fmt.Errorf("client ip could not be determined")
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return "", fmt.Errorf("invalid client ip %q", raw)
	}

	return ip.String(), nil
}

// ProxyTrust guarda as redes de proxies confiáveis
type ProxyTrust struct {
	proxies []string
	nets    []*net.IPNet
}

// NewProxyTrust aceita IPs ou CIDRs; lista vazia não confia em ninguém
func NewProxyTrust(proxies []string) (*ProxyTrust, error) {
	trust := &ProxyTrust{}

	for _, proxy := range proxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}

		cidr := proxy
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", proxy)
			}
			if ip.To4() != nil {
				cidr += "/32"
			} else {
				cidr += "/128"
			}
		}

		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", proxy, err)
		}

		trust.proxies = append(trust.proxies, proxy)
		trust.nets = append(trust.nets, network)
	}

	return trust, nil
}

// Proxies retorna a lista no formato de gin.Engine.SetTrustedProxies (nil quando vazia)
func (p *ProxyTrust) Proxies() []string {
	if p == nil || len(p.proxies) == 0 {
		return nil
	}
	out := make([]string, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// Trusts indica se o endereço remoto pertence a um proxy confiável
func (p *ProxyTrust) Trusts(remoteAddr string) bool {
	if p == nil || len(p.nets) == 0 {
		return false
	}

	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range p.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// IsSecure indica se a requisição chegou por HTTPS.
// X-Forwarded-Proto só vale quando enviado por um proxy confiável.
func (p *ProxyTrust) IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}

	if !p.Trusts(r.RemoteAddr) {
		return false
	}

	proto := r.Header.Get("X-Forwarded-Proto")
	if i := strings.Index(proto, ","); i >= 0 {
		proto = proto[:i]
	}
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
