package command

// Factory builds the atomic write commands. The storage layer may supply its
// own; DefaultFactory builds the commands of this package.
type Factory interface {
	Insert(target Target, data map[string]any) Carrier
	Update(target Target, data, where map[string]any) ScopeCarrier
	Delete(target Target, where map[string]any) Scoped
}

// DefaultFactory creates Insert, Update and Delete commands.
type DefaultFactory struct{}

// Insert implements Factory.
func (DefaultFactory) Insert(target Target, data map[string]any) Carrier {
	return NewInsert(target, data)
}

// Update implements Factory.
func (DefaultFactory) Update(target Target, data, where map[string]any) ScopeCarrier {
	return NewUpdate(target, data, where)
}

// Delete implements Factory.
func (DefaultFactory) Delete(target Target, where map[string]any) Scoped {
	return NewDelete(target, where)
}
