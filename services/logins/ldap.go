package logins

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/logger"
)

// masterSep joins a mailbox user with a master user in the Dovecot
// "user*master" convention.
const masterSep = "*"

type LdapConfig struct {
	URL           string        `env:"LDAP_URL"`
	Base          string        `env:"LDAP_BASE"`
	BindUser      string        `env:"LDAP_BIND_USER"`
	BindPassword  string        `env:"LDAP_BIND_PASSWORD"`
	NameField     string        `env:"LDAP_NAME_FIELD" envDefault:"uid"`
	PasswordField string        `env:"LDAP_PASSWORD_FIELD" envDefault:"userPassword"`
	Refresh       time.Duration `env:"LDAP_REFRESH_INTERVAL" envDefault:"60m"`

	// A master account that may access all mailboxes. When set, each user
	// becomes "user*master" and the master password replaces the per-user one.
	MasterUser     string `env:"LDAP_MASTER_USER"`
	MasterPassword string `env:"LDAP_MASTER_PASSWORD"`
}

// ldapLoginSource reads every user below the search base and refreshes the
// list on an interval until Close. A failed refresh keeps the previous list.
type ldapLoginSource struct {
	cfg LdapConfig
	log logger.Logger

	mu     sync.RWMutex
	logins []interfaces.Login

	stopCh    chan struct{}
	closeOnce sync.Once
}

func NewLdapLoginSource(cfg LdapConfig, log logger.Logger) interfaces.LoginSource {
	s := &ldapLoginSource{
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
	}

	if logins, err := s.read(); err != nil {
		log.Errorf("Initial LDAP read failed: %v", err)
	} else {
		s.logins = logins
	}

	if cfg.Refresh > 0 {
		go s.refreshLoop()
	}
	return s
}

func (s *ldapLoginSource) refreshLoop() {
	ticker := time.NewTicker(s.cfg.Refresh)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			logins, err := s.read()
			if err != nil {
				s.log.Errorf("LDAP refresh failed, keeping previous logins: %v", err)
				continue
			}
			s.mu.Lock()
			s.logins = logins
			s.mu.Unlock()
		}
	}
}

func (s *ldapLoginSource) read() ([]interfaces.Login, error) {
	conn, err := ldap.DialURL(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ldap %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	if s.cfg.BindUser != "" {
		if err := conn.Bind(s.cfg.BindUser, s.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("ldap bind failed: %w", err)
		}
	}

	request := ldap.NewSearchRequest(
		s.cfg.Base,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(%s=*)", s.cfg.NameField),
		[]string{s.cfg.NameField, s.cfg.PasswordField},
		nil,
	)

	result, err := conn.Search(request)
	if err != nil {
		return nil, fmt.Errorf("ldap search failed: %w", err)
	}

	logins := make([]interfaces.Login, 0, len(result.Entries))
	for _, entry := range result.Entries {
		name := entry.GetAttributeValue(s.cfg.NameField)
		if name == "" {
			name = firstRDNValue(entry.DN)
		}
		if name == "" {
			continue
		}
		password := entry.GetAttributeValue(s.cfg.PasswordField)

		if s.cfg.MasterUser != "" {
			name = name + masterSep + s.cfg.MasterUser
			password = s.cfg.MasterPassword
		}

		logins = append(logins, interfaces.Login{Username: name, Password: password})
	}

	return logins, nil
}

func firstRDNValue(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 || len(parsed.RDNs[0].Attributes) == 0 {
		// Last resort: "uid=name,dc=..." string surgery.
		head := strings.SplitN(dn, ",", 2)[0]
		parts := strings.SplitN(head, "=", 2)
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	}
	return parsed.RDNs[0].Attributes[0].Value
}

func (s *ldapLoginSource) Name() string {
	return "LDAP login source"
}

func (s *ldapLoginSource) Logins() []interfaces.Login {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interfaces.Login, len(s.logins))
	copy(out, s.logins)
	return out
}

// Close stops the refresh loop. Idempotent.
func (s *ldapLoginSource) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
}
