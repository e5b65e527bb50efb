package state

// UserConfiguration is the per-user sparse map from reserve id to the two
// participation flags: supplied balance used as collateral, and outstanding
// borrowing. Flags are maintained by the pool operations: collateral is set
// on first supply and cleared when the balance reaches zero, borrowing
// mirrors debt existence.
type UserConfiguration struct {
	flags map[uint8]reserveFlags
}

type reserveFlags struct {
	collateral bool
	borrowing  bool
}

func NewUserConfiguration() *UserConfiguration {
	return &UserConfiguration{flags: make(map[uint8]reserveFlags)}
}

func (c *UserConfiguration) UsingAsCollateral(reserveID uint8) bool {
	return c.flags[reserveID].collateral
}

func (c *UserConfiguration) Borrowing(reserveID uint8) bool {
	return c.flags[reserveID].borrowing
}

func (c *UserConfiguration) SetUsingAsCollateral(reserveID uint8, v bool) {
	f := c.flags[reserveID]
	f.collateral = v
	c.set(reserveID, f)
}

func (c *UserConfiguration) SetBorrowing(reserveID uint8, v bool) {
	f := c.flags[reserveID]
	f.borrowing = v
	c.set(reserveID, f)
}

func (c *UserConfiguration) set(reserveID uint8, f reserveFlags) {
	if !f.collateral && !f.borrowing {
		delete(c.flags, reserveID)
		return
	}
	c.flags[reserveID] = f
}

// IsEmpty reports whether the user participates in no reserve at all.
func (c *UserConfiguration) IsEmpty() bool {
	return len(c.flags) == 0
}

// UserRegistry maps user identities to their configurations, creating an
// empty configuration on first touch.
type UserRegistry struct {
	users map[string]*UserConfiguration
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string]*UserConfiguration)}
}

func (r *UserRegistry) Get(user string) *UserConfiguration {
	cfg := r.users[user]
	if cfg == nil {
		cfg = NewUserConfiguration()
		r.users[user] = cfg
	}
	return cfg
}

// Peek returns the configuration without creating one.
func (r *UserRegistry) Peek(user string) (*UserConfiguration, bool) {
	cfg, ok := r.users[user]
	return cfg, ok
}
