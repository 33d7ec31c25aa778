package auth

import "time"

// mustSeedRole inserts a role directly, bypassing service validation.
func (m *InMemoryStore) mustSeedRole(name string) *Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := &Role{ID: m.nextID("role"), Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.roles[role.ID] = role
	return role
}

func (m *InMemoryStore) mustSeedPermission(name, action, resource string) *Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	perm := &Permission{ID: m.nextID("perm"), Name: name, Action: action, Resource: resource, Description: name}
	m.perms[perm.ID] = perm
	return perm
}

func (m *InMemoryStore) mustLink(roleID, permID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[linkKey(roleID, permID)] = time.Now()
}
