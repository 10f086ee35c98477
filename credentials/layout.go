package credentials

// Lifetime is how long a stored key survives
type Lifetime int

const (
	TabScoped Lifetime = iota // Cleared when the tab closes
	CrossTab                  // Survives reloads and is shared by every tab of the origin
)

func (l Lifetime) String() string {
	if l == CrossTab {
		return "cross_tab"
	}
	return "tab"
}

type storageKey struct {
	name     string
	lifetime Lifetime
}

// recordKeys maps each record field to its storage key; a zero key is not persisted for that scope
type recordKeys struct {
	access   storageKey
	refresh  storageKey
	owner    storageKey // owner as JSON
	email    storageKey // owner email as a bare string
	resource storageKey
	message  storageKey
}

func (rk recordKeys) all() []storageKey {
	keys := make([]storageKey, 0, 6)
	for _, k := range []storageKey{rk.access, rk.refresh, rk.owner, rk.email, rk.resource, rk.message} {
		if k.name != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// The main slot mirrors whichever record is active and is what outgoing calls authorise with.
var (
	mainTokenKey    = storageKey{"token", TabScoped}
	mainUserKey     = storageKey{"user", TabScoped}
	mainResourceKey = storageKey{"restaurant_id", TabScoped}
)

var mainSlotKeys = []storageKey{mainTokenKey, mainUserKey, mainResourceKey}

var layout = map[Scope]recordKeys{
	ScopeRegular: {
		access:   storageKey{"token", CrossTab},
		refresh:  storageKey{"refresh", CrossTab},
		owner:    storageKey{"user", CrossTab},
		resource: storageKey{"restaurant_id", CrossTab},
	},
	ScopeOriginalAdmin: {
		access:   storageKey{"original_superadmin_token", TabScoped},
		refresh:  storageKey{"original_superadmin_refresh", TabScoped},
		owner:    storageKey{"original_superadmin", TabScoped},
		resource: storageKey{"original_restaurant_id", TabScoped},
	},
	ScopeImpersonation: {
		access:   storageKey{"impersonation_access_token", TabScoped},
		refresh:  storageKey{"impersonation_refresh_token", TabScoped},
		owner:    storageKey{"impersonated_user_data", TabScoped},
		email:    storageKey{"impersonated_user", TabScoped},
		resource: storageKey{"impersonated_restaurant_id", TabScoped},
		message:  storageKey{"impersonation_message", TabScoped},
	},
}
