package registry

import (
	"fmt"
	"sort"

	"github.com/rickgao/nano-relay/internal/model"
)

// DeltaKind says which way an account's upstream subscription changes.
type DeltaKind string

const (
	DeltaAdd    DeltaKind = "add"
	DeltaRemove DeltaKind = "remove"
)

// Delta is an upstream subscription change.
type Delta struct {
	Kind    DeltaKind
	Account string
}

// Registry indexes account subscriptions in both directions.
type Registry struct {
	byAccount map[string]map[model.ClientID]struct{}
	byClient  map[model.ClientID]map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byAccount: make(map[string]map[model.ClientID]struct{}),
		byClient:  make(map[model.ClientID]map[string]struct{}),
	}
}

// Add subscribes client to account. It returns a DeltaAdd if the account had
// no subscribers before.
func (r *Registry) Add(client model.ClientID, account string) (Delta, bool) {
	accounts, ok := r.byClient[client]
	if !ok {
		accounts = make(map[string]struct{})
		r.byClient[client] = accounts
	}
	if _, dup := accounts[account]; dup {
		return Delta{}, false
	}
	accounts[account] = struct{}{}

	clients, ok := r.byAccount[account]
	if !ok {
		clients = make(map[model.ClientID]struct{})
		r.byAccount[account] = clients
	}
	clients[client] = struct{}{}

	if len(clients) == 1 {
		return Delta{Kind: DeltaAdd, Account: account}, true
	}
	return Delta{}, false
}

// Remove unsubscribes client from account. It returns a DeltaRemove if that
// left the account with no subscribers. Unknown pairs are a no-op.
func (r *Registry) Remove(client model.ClientID, account string) (Delta, bool) {
	accounts, ok := r.byClient[client]
	if !ok {
		return Delta{}, false
	}
	if _, ok := accounts[account]; !ok {
		return Delta{}, false
	}
	delete(accounts, account)
	if len(accounts) == 0 {
		delete(r.byClient, client)
	}

	clients := r.byAccount[account]
	delete(clients, client)
	if len(clients) == 0 {
		delete(r.byAccount, account)
		return Delta{Kind: DeltaRemove, Account: account}, true
	}
	return Delta{}, false
}

// RemoveClient drops every subscription of client and returns the resulting
// DeltaRemove for each account it was the last subscriber of, sorted by account.
func (r *Registry) RemoveClient(client model.ClientID) []Delta {
	accounts, ok := r.byClient[client]
	if !ok {
		return nil
	}

	owned := make([]string, 0, len(accounts))
	for account := range accounts {
		owned = append(owned, account)
	}
	sort.Strings(owned)

	var deltas []Delta
	for _, account := range owned {
		if d, ok := r.Remove(client, account); ok {
			deltas = append(deltas, d)
		}
	}
	return deltas
}

// SubscribersOf returns a snapshot of the clients watching account. Unknown
// accounts yield an empty slice.
func (r *Registry) SubscribersOf(account string) []model.ClientID {
	clients := r.byAccount[account]
	out := make([]model.ClientID, 0, len(clients))
	for c := range clients {
		out = append(out, c)
	}
	return out
}

// Union returns the distinct subscribers of all given accounts.
func (r *Registry) Union(accounts ...string) []model.ClientID {
	seen := make(map[model.ClientID]struct{})
	var out []model.ClientID
	for _, account := range accounts {
		if account == "" {
			continue
		}
		for c := range r.byAccount[account] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// AccountsOf returns the accounts client is subscribed to, sorted.
func (r *Registry) AccountsOf(client model.ClientID) []string {
	return sortedKeys(r.byClient[client])
}

// Accounts returns every account with at least one subscriber, sorted.
func (r *Registry) Accounts() []string {
	return sortedKeys(r.byAccount)
}

// AccountCount returns the number of subscribed accounts.
func (r *Registry) AccountCount() int {
	return len(r.byAccount)
}

// ClientCount returns the number of clients with at least one subscription.
func (r *Registry) ClientCount() int {
	return len(r.byClient)
}

// Check verifies that both indexes describe the same relation and that no
// empty sets are retained.
func (r *Registry) Check() error {
	pairs := 0
	for client, accounts := range r.byClient {
		if len(accounts) == 0 {
			return fmt.Errorf("client %s has an empty account set", client)
		}
		for account := range accounts {
			if _, ok := r.byAccount[account][client]; !ok {
				return fmt.Errorf("client %s lists %s but account index does not", client, account)
			}
			pairs++
		}
	}

	for account, clients := range r.byAccount {
		if len(clients) == 0 {
			return fmt.Errorf("account %s has an empty client set", account)
		}
		for client := range clients {
			if _, ok := r.byClient[client][account]; !ok {
				return fmt.Errorf("account %s lists %s but client index does not", account, client)
			}
			pairs--
		}
	}

	if pairs != 0 {
		return fmt.Errorf("index sizes differ by %d", pairs)
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
