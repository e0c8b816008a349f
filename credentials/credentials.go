// Package credentials normalizes Odoo connection credentials supplied via
// HTTP headers or environment variables into a single record, or rejects the
// bag when any required value is missing.
package credentials

import (
	"encoding/json"
	"net/http"
	"os"
)

// Header names consumed during session initialization.
const (
	HeaderURL       = "X-Odoo-Url"
	HeaderDatabase  = "X-Odoo-Db"
	HeaderUsername  = "X-Odoo-Username"
	HeaderPassword  = "X-Odoo-Password"
	HeaderTransport = "X-Odoo-Transport"
)

// Environment variable names consumed for auto-login.
const (
	EnvURL       = "ODOO_URL"
	EnvDatabase  = "ODOO_DB"
	EnvUsername  = "ODOO_USERNAME"
	EnvPassword  = "ODOO_PASSWORD"
	EnvTransport = "ODOO_TRANSPORT"
)

// DefaultTransport is used when no transport value is supplied.
const DefaultTransport = "jsonrpc"

// Canonical bag keys.
const (
	keyURL       = "url"
	keyDatabase  = "database"
	keyUsername  = "username"
	keyPassword  = "password"
	keyTransport = "transport"
)

// Bag is a loosely typed credential source. Values may be scalar strings or
// string slices (the multi-valued header representation); extraction always
// takes the first element of a slice and treats an empty slice as absent.
type Bag map[string]any

// Record holds a complete, validated set of backend credentials.
type Record struct {
	URL       string `json:"url"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Transport string `json:"transport"`
}

// Args marshals the record into tool-call arguments for the connect tool.
func (r *Record) Args() json.RawMessage {
	b, _ := json.Marshal(r)
	return b
}

// FromHeader builds a Bag from the dedicated Odoo headers of an HTTP request.
func FromHeader(h http.Header) Bag {
	bag := Bag{}
	for key, name := range map[string]string{
		keyURL:       HeaderURL,
		keyDatabase:  HeaderDatabase,
		keyUsername:  HeaderUsername,
		keyPassword:  HeaderPassword,
		keyTransport: HeaderTransport,
	} {
		if vs := h.Values(name); len(vs) > 0 {
			bag[key] = vs
		}
	}
	return bag
}

// FromEnv builds a Bag from the ODOO_* environment variables. Unset variables
// are omitted entirely rather than mapped to empty strings.
func FromEnv() Bag {
	bag := Bag{}
	for key, name := range map[string]string{
		keyURL:       EnvURL,
		keyDatabase:  EnvDatabase,
		keyUsername:  EnvUsername,
		keyPassword:  EnvPassword,
		keyTransport: EnvTransport,
	} {
		if v, ok := os.LookupEnv(name); ok {
			bag[key] = v
		}
	}
	return bag
}

// Extract maps a bag to a normalized credential record. It returns nil, never
// a partial record, unless url, database, username, and password all resolve
// to non-empty strings. The transport value defaults instead of invalidating.
func Extract(bag Bag) *Record {
	rec := &Record{
		URL:       first(bag[keyURL]),
		Database:  first(bag[keyDatabase]),
		Username:  first(bag[keyUsername]),
		Password:  first(bag[keyPassword]),
		Transport: first(bag[keyTransport]),
	}
	if rec.URL == "" || rec.Database == "" || rec.Username == "" || rec.Password == "" {
		return nil
	}
	if rec.Transport == "" {
		rec.Transport = DefaultTransport
	}
	return rec
}

// first resolves a bag value to a scalar string. A slice resolves to its
// first element; an empty slice means absent, not empty string.
func first(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) == 0 {
			return ""
		}
		return t[0]
	case []any:
		if len(t) == 0 {
			return ""
		}
		s, _ := t[0].(string)
		return s
	default:
		return ""
	}
}
