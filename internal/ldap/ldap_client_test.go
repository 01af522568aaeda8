package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpp-cyber/ldapauth/internal/tools"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		edit      func(c *Config)
		wantField string
	}{
		{name: "valid", edit: nil},
		{name: "missing host", edit: func(c *Config) { c.Host = " " }, wantField: "LDAP_HOST"},
		{name: "port out of range", edit: func(c *Config) { c.Port = 70000 }, wantField: "LDAP_PORT"},
		{name: "missing admin DN", edit: func(c *Config) { c.AdminDN = "" }, wantField: "LDAP_ADMIN_DN"},
		{name: "missing admin password", edit: func(c *Config) { c.AdminPassword = "" }, wantField: "LDAP_ADMIN_PASSWORD"},
		{name: "missing search base", edit: func(c *Config) { c.UserSearchBase = "" }, wantField: "LDAP_USER_SEARCH_BASE"},
		{name: "zero timeout", edit: func(c *Config) { c.Timeout = 0 }, wantField: "LDAP_TIMEOUT"},
		{name: "negative referral hops", edit: func(c *Config) { c.MaxReferralHops = -1 }, wantField: "LDAP_MAX_REFERRAL_HOPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testConfig(tt.edit).Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var configErr *tools.ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.wantField, configErr.Field)
		})
	}
}

func TestConfigAddress(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{host: "ldap.example.com", port: 389, want: "ldap.example.com:389"},
		{host: "ldap.example.com:10389", port: 389, want: "ldap.example.com:10389"},
		{host: "[::1]", port: 636, want: "[::1]:636"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			address, err := (&Config{Host: tt.host, Port: tt.port}).Address()
			require.NoError(t, err)
			assert.Equal(t, tt.want, address)
		})
	}
}

func TestParseReferral(t *testing.T) {
	tests := []struct {
		referral string
		wantAddr string
		wantTLS  bool
		wantBase string
		wantErr  bool
	}{
		{referral: "ldap://east.example.com/ou=people,dc=co,dc=com", wantAddr: "east.example.com:389", wantBase: "ou=people,dc=co,dc=com"},
		{referral: "ldaps://east.example.com", wantAddr: "east.example.com:636", wantTLS: true},
		{referral: "LDAP://east.example.com:1389/", wantAddr: "east.example.com:1389"},
		{referral: "http://east.example.com/", wantErr: true},
		{referral: "ldap:///ou=people", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.referral, func(t *testing.T) {
			address, useTLS, base, err := parseReferral(tt.referral)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, address)
			assert.Equal(t, tt.wantTLS, useTLS)
			assert.Equal(t, tt.wantBase, base)
		})
	}
}
