package enrich

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// UserInfo is the directory context attached to a principal/target username
// found in an event.
type UserInfo struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Department  string   `json:"department,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

// UserDirectoryConfig configures the LDAP directory lookup. An empty
// Endpoint disables lookups.
type UserDirectoryConfig struct {
	Endpoint       string
	BaseDN         string
	BindDN         string
	BindPassword   string
	UseTLS         bool
	RequestTimeout time.Duration
}

// UserEnricher resolves a username against an LDAP directory, pooling
// connections so a burst of events referencing different usernames doesn't
// dial once per lookup.
type UserEnricher struct {
	cfg   UserDirectoryConfig
	cache *ttlCache[*UserInfo]
	pool  chan *ldap.Conn
}

func NewUserEnricher(cfg UserDirectoryConfig, cacheSize int, cacheTTL time.Duration) *UserEnricher {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	e := &UserEnricher{cfg: cfg, cache: newTTLCache[*UserInfo](cacheSize, cacheTTL)}
	if cfg.Endpoint != "" {
		e.pool = make(chan *ldap.Conn, 5)
	}
	return e
}

func (e *UserEnricher) dial() (*ldap.Conn, error) {
	var conn *ldap.Conn
	var err error
	if e.cfg.UseTLS {
		conn, err = ldap.DialTLS("tcp", e.cfg.Endpoint, &tls.Config{InsecureSkipVerify: false})
	} else {
		conn, err = ldap.Dial("tcp", e.cfg.Endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("dial ldap: %w", err)
	}
	if e.cfg.BindDN != "" {
		if err := conn.Bind(e.cfg.BindDN, e.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind ldap: %w", err)
		}
	}
	return conn, nil
}

func (e *UserEnricher) acquire() (*ldap.Conn, error) {
	select {
	case conn := <-e.pool:
		return conn, nil
	default:
		return e.dial()
	}
}

func (e *UserEnricher) release(conn *ldap.Conn) {
	select {
	case e.pool <- conn:
	default:
		conn.Close()
	}
}

// Lookup resolves username against the directory. A nil result with a nil
// error means the directory is unconfigured or the user wasn't found,
// which is not a failure. A non-nil error is a real directory failure
// (dial, bind, or search error) the caller should surface via
// enriched.errors — enrichment failures are still non-fatal to the caller,
// just distinguishable from a legitimate no-match.
func (e *UserEnricher) Lookup(ctx context.Context, username string) (*UserInfo, error) {
	if e.pool == nil {
		return nil, nil
	}
	if u := e.cache.get(username); u != nil {
		return u, nil
	}

	conn, err := e.acquire()
	if err != nil {
		return nil, fmt.Errorf("ldap lookup for %s: %w", username, err)
	}
	defer e.release(conn)

	filter := fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		e.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1,
		int(e.cfg.RequestTimeout.Seconds()),
		false,
		filter,
		[]string{"sAMAccountName", "mail", "displayName", "department", "memberOf"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap lookup for %s: %w", username, err)
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}

	entry := result.Entries[0]
	info := &UserInfo{
		Username:    entry.GetAttributeValue("sAMAccountName"),
		DisplayName: entry.GetAttributeValue("displayName"),
		Email:       entry.GetAttributeValue("mail"),
		Department:  entry.GetAttributeValue("department"),
		Groups:      extractGroupNames(entry.GetAttributeValues("memberOf")),
	}
	e.cache.set(username, info)
	return info, nil
}

func extractGroupNames(memberOf []string) []string {
	groups := make([]string, 0, len(memberOf))
	for _, dn := range memberOf {
		groups = append(groups, cnOf(dn))
	}
	return groups
}

func cnOf(dn string) string {
	for i := 0; i+3 <= len(dn); i++ {
		if dn[i] == 'C' && dn[i+1] == 'N' && dn[i+2] == '=' {
			j := i + 3
			for j < len(dn) && dn[j] != ',' {
				j++
			}
			return dn[i+3 : j]
		}
	}
	return dn
}
