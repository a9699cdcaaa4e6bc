package models

// Scope is a process-wide policy restricting the allow-set of plugins and
// the network exposure of probes.
type Scope string

const (
	ScopeLocal    Scope = "local"
	ScopeNetwork  Scope = "network"
	ScopeInternet Scope = "internet"
	ScopeVPN      Scope = "vpn"
	ScopeTor      Scope = "tor"
	ScopeRemote   Scope = "remote"
)

// ValidScopes enumerates the closed set of recognized scopes.
var ValidScopes = map[Scope]bool{
	ScopeLocal: true, ScopeNetwork: true, ScopeInternet: true,
	ScopeVPN: true, ScopeTor: true, ScopeRemote: true,
}
